package content

import "fmt"

// VoicePools lists the voices available to speakers by gender.
type VoicePools struct {
	Narrator string   `yaml:"narrator" json:"narrator"`
	Female   []string `yaml:"female" json:"female"`
	Male     []string `yaml:"male" json:"male"`
}

// AssignVoices maps every item id to a voice name. Narration (instructions,
// questions, answers) uses the narrator. A text uses its speaker's declared
// voice, or the next voice from the speaker's gender pool, rotating in order
// of first appearance so the same document always gets the same voices.
func AssignVoices(doc *Document, items []Item, pools VoicePools) (map[string]string, error) {
	if pools.Narrator == "" {
		return nil, fmt.Errorf("assign voices: no narrator voice configured")
	}

	bySpeaker := make(map[string]string)
	next := map[string]int{}
	for _, sp := range doc.Speakers {
		if sp.VoiceName != "" {
			bySpeaker[sp.Name] = sp.VoiceName
			continue
		}
		var pool []string
		switch sp.Gender {
		case "female":
			pool = pools.Female
		case "male":
			pool = pools.Male
		default:
			bySpeaker[sp.Name] = pools.Narrator
			continue
		}
		if len(pool) == 0 {
			return nil, fmt.Errorf("assign voices: no %s voices configured for speaker %q", sp.Gender, sp.Name)
		}
		bySpeaker[sp.Name] = pool[next[sp.Gender]%len(pool)]
		next[sp.Gender]++
	}

	voices := make(map[string]string, len(items))
	for _, it := range items {
		voice := pools.Narrator
		if p, ok := it.(Passage); ok && p.Speaker != "" {
			if v, ok := bySpeaker[p.Speaker]; ok {
				voice = v
			}
		}
		voices[it.ID()] = voice
	}
	return voices, nil
}
