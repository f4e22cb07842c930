package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// paramError is a caller-visible parameter problem. Handlers answer it with
// a 400 and the message verbatim.
type paramError struct {
	msg string
}

func (e *paramError) Error() string {
	return e.msg
}

// formatParamList renders parameter names sorted and single-quoted, the way
// the wire contract spells them: 'a', 'b'.
func formatParamList(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return "'" + strings.Join(sorted, "', '") + "'"
}

// checkParamKeys enforces the strict parameter set of an endpoint: every
// mandatory name present, nothing outside mandatory+optional.
func checkParamKeys(present, mandatory, optional []string) error {
	allowed := make(map[string]bool, len(mandatory)+len(optional))
	for _, name := range mandatory {
		allowed[name] = true
	}
	for _, name := range optional {
		allowed[name] = true
	}
	seen := make(map[string]bool, len(present))
	for _, name := range present {
		seen[name] = true
	}

	var missing []string
	for _, name := range mandatory {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &paramError{"Missing request parameters: " + formatParamList(missing)}
	}

	var extra []string
	for _, name := range present {
		if !allowed[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		return &paramError{"Unexpected request parameters: " + formatParamList(extra)}
	}
	return nil
}

// parseJSONParams decodes a JSON object body and enforces its parameter
// set. An empty body counts as an empty object.
func parseJSONParams(body []byte, mandatory, optional []string) (map[string]json.RawMessage, error) {
	params := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			return nil, &paramError{"Invalid JSON body."}
		}
	}

	keys := make([]string, 0, len(params))
	for name := range params {
		keys = append(keys, name)
	}
	if err := checkParamKeys(keys, mandatory, optional); err != nil {
		return nil, err
	}
	return params, nil
}

// decodeParam unmarshals one named parameter into dest, translating a type
// error into a caller-visible message.
func decodeParam(params map[string]json.RawMessage, name string, dest any) error {
	raw, ok := params[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &paramError{fmt.Sprintf("Invalid value for parameter '%s'.", name)}
	}
	return nil
}
