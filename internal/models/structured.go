package models

import "time"

// StructuredReply is the artifact derived from a raw assistant reply: a short
// title, the leading summary, heuristic sections, the first fenced code block,
// and a preview suitable for list rendering.
type StructuredReply struct {
	Text     string        `json:"text"`
	Title    string        `json:"title"`
	Summary  string        `json:"summary"`
	Sections []Section     `json:"sections"`
	Code     *CodeBlock    `json:"code"`
	Preview  string        `json:"preview"`
	Meta     StructureMeta `json:"meta"`
}

// Section groups short fragments under a heading.
type Section struct {
	Heading string   `json:"heading"`
	Items   []string `json:"items"`
}

// CodeBlock is the first fenced code block found in a reply.
type CodeBlock struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// StructureMeta records which model produced the reply and when it was structured.
type StructureMeta struct {
	Model string    `json:"model"`
	Time  time.Time `json:"time"`
}
