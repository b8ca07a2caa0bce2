package oplabel

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML document of the form
//
//	rules:
//	  - when: receiver != "" and callee in ["open", "close"]
//	  - op: create()
//	    when: callee == "New"
func LoadRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return f.Rules, nil
}
