package router

// Persona is one of the fixed response roles the dispatcher can route to.
type Persona struct {
	ID          string
	DisplayName string
}

// Registry order matters: target normalization checks display names in this
// order and the first substring match wins.
var Registry = []Persona{
	{ID: "wan_qing", DisplayName: "晚晴"},
	{ID: "xin_jing", DisplayName: "心镜"},
	{ID: "xing_zhe", DisplayName: "行者"},
}

// DefaultTarget is the persona used when the classifier output cannot be
// resolved. It must always name a registered persona.
const DefaultTarget = "wan_qing"

// KnownPersona reports whether id names a registered persona.
func KnownPersona(id string) bool {
	for _, p := range Registry {
		if p.ID == id {
			return true
		}
	}
	return false
}

// DisplayName returns the human-facing name for a persona id, falling back
// to the id itself for unknown values.
func DisplayName(id string) string {
	for _, p := range Registry {
		if p.ID == id {
			return p.DisplayName
		}
	}
	return id
}
