package service

import "encoding/json"

// mustJSON marshals v. The domain records are plain structs, so this cannot
// fail at runtime.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func unmarshalJSON(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}
