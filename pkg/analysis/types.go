package analysis

// ApplicationContext 视频中应用的整体信息
type ApplicationContext struct {
	Type        string `json:"type"`
	Framework   string `json:"framework,omitempty"`
	Description string `json:"description"`
}

// Observation 分析服务给出的一条原始交互记录
type Observation struct {
	Description    string `json:"description"`
	Action         string `json:"action"`
	Element        string `json:"element"`
	ExpectedResult string `json:"expectedResult,omitempty"`
}

// Result 分析服务的结构化输出
type Result struct {
	ApplicationContext ApplicationContext `json:"applicationContext"`
	Steps              []Observation      `json:"steps"`
	EdgeCases          []string           `json:"edgeCases"`
	PotentialIssues    []string           `json:"potentialIssues"`
}
