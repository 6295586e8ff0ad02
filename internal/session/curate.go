package session

import "github.com/apexion-ai/reactagent/internal/provider"

// Curate returns the history that is safe to send to the model.
//
// Consecutive model messages form the answer to the user message before
// them. An answer in which any message has empty text is dropped together
// with that user message. A leading answer with no user message before it
// is dropped on its own. The result is a subsequence of snapshot and
// Curate(Curate(h)) equals Curate(h).
func Curate(snapshot []provider.Message) []provider.Message {
	curated, _ := CurateWithStats(snapshot)
	return curated
}

// CurateWithStats is Curate that also reports how many input messages were
// left out.
func CurateWithStats(snapshot []provider.Message) ([]provider.Message, int) {
	out := make([]provider.Message, 0, len(snapshot))
	for i := 0; i < len(snapshot); {
		if snapshot[i].Role() == provider.RoleUser {
			out = append(out, snapshot[i])
			i++
			continue
		}

		start, valid := i, true
		for i < len(snapshot) && snapshot[i].Role() != provider.RoleUser {
			if snapshot[i].Text() == "" {
				valid = false
			}
			i++
		}
		if valid {
			out = append(out, snapshot[start:i]...)
			continue
		}
		if len(out) > 0 {
			out = out[:len(out)-1]
		}
	}
	return out, len(snapshot) - len(out)
}
