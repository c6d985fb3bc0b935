package steps

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xpzouying/starpath/pkg/analysis"
)

// Kind 交互步骤类型
type Kind int

const (
	KindAssert Kind = iota
	KindNavigate
	KindInput
	KindClick
)

func (k Kind) String() string {
	switch k {
	case KindNavigate:
		return "navigate"
	case KindInput:
		return "input"
	case KindClick:
		return "click"
	case KindAssert:
		return "assert"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind 从小写名称解析步骤类型
func ParseKind(s string) (Kind, error) {
	switch s {
	case "navigate":
		return KindNavigate, nil
	case "input":
		return KindInput, nil
	case "click":
		return KindClick, nil
	case "assert":
		return KindAssert, nil
	}
	return KindAssert, fmt.Errorf("unknown step type %q", s)
}

// Step 一个规范化的交互步骤
type Step struct {
	Kind  Kind
	Value string
}

type stepJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{Type: s.Kind.String(), Value: s.Value})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseKind(raw.Type)
	if err != nil {
		return err
	}
	s.Kind, s.Value = kind, raw.Value
	return nil
}

// ClassifyAction 根据动作动词判断步骤类型，大小写不敏感，未识别的动词归为 Assert
func ClassifyAction(action string) Kind {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "navigate":
		return KindNavigate
	case "type", "input", "fill":
		return KindInput
	case "click", "press", "tap", "toggle", "check", "uncheck":
		return KindClick
	case "assert", "verify", "check visibility":
		return KindAssert
	default:
		return KindAssert
	}
}

// FromObservation 把一条观测转换成步骤
func FromObservation(o analysis.Observation) Step {
	kind := ClassifyAction(o.Action)
	switch kind {
	case KindNavigate, KindInput, KindClick:
		return Step{Kind: kind, Value: o.Element}
	case KindAssert:
		value := o.ExpectedResult
		if value == "" {
			value = o.Description
		}
		return Step{Kind: KindAssert, Value: value}
	}
	panic(fmt.Sprintf("steps: unhandled kind %v", kind))
}

// Classify 按原顺序转换所有观测，不去重
func Classify(observations []analysis.Observation) []Step {
	out := make([]Step, 0, len(observations))
	for _, o := range observations {
		out = append(out, FromObservation(o))
	}
	return out
}
