package core

import (
	"encoding/json"
	"fmt"
)

const (
	partTypeText                = "text"
	partTypeData                = "data"
	partTypeFile                = "file"
	partTypeFunctionCall        = "function_call"
	partTypeFunctionResponse    = "function_response"
	partTypeCodeExecutionResult = "code_execution_result"
)

// partJSON is the tagged wire shape of a Part.
type partJSON struct {
	Type                string               `json:"type"`
	Text                string               `json:"text,omitempty"`
	Data                map[string]any       `json:"data,omitempty"`
	File                *FilePartFile        `json:"file,omitempty"`
	FunctionCall        *FunctionCall        `json:"function_call,omitempty"`
	FunctionResponse    *FunctionResponse    `json:"function_response,omitempty"`
	CodeExecutionResult *CodeExecutionResult `json:"code_execution_result,omitempty"`
	Metadata            map[string]any       `json:"metadata,omitempty"`
}

type contentJSON struct {
	Role  string     `json:"role,omitempty"`
	Parts []partJSON `json:"parts"`
}

// MarshalJSON encodes the closed Part set with a type discriminator.
func (c Content) MarshalJSON() ([]byte, error) {
	out := contentJSON{Role: c.Role, Parts: make([]partJSON, 0, len(c.Parts))}
	for _, p := range c.Parts {
		pj, err := encodePart(p)
		if err != nil {
			return nil, err
		}
		out.Parts = append(out.Parts, pj)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes parts written by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var in contentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Role = in.Role
	c.Parts = make([]Part, 0, len(in.Parts))
	for _, pj := range in.Parts {
		p, err := decodePart(pj)
		if err != nil {
			return err
		}
		c.Parts = append(c.Parts, p)
	}
	return nil
}

func encodePart(p Part) (partJSON, error) {
	switch v := p.(type) {
	case TextPart:
		return partJSON{Type: partTypeText, Text: v.Text, Metadata: v.Metadata}, nil
	case DataPart:
		return partJSON{Type: partTypeData, Data: v.Data, Metadata: v.Metadata}, nil
	case FilePart:
		f := v.File
		return partJSON{Type: partTypeFile, File: &f, Metadata: v.Metadata}, nil
	case FunctionCallPart:
		fc := v.FunctionCall
		return partJSON{Type: partTypeFunctionCall, FunctionCall: &fc, Metadata: v.Metadata}, nil
	case FunctionResponsePart:
		fr := v.FunctionResponse
		return partJSON{Type: partTypeFunctionResponse, FunctionResponse: &fr, Metadata: v.Metadata}, nil
	case CodeExecutionResultPart:
		r := v.Result
		return partJSON{Type: partTypeCodeExecutionResult, CodeExecutionResult: &r, Metadata: v.Metadata}, nil
	default:
		return partJSON{}, fmt.Errorf("unsupported part type %T", p)
	}
}

func decodePart(pj partJSON) (Part, error) {
	switch pj.Type {
	case partTypeText:
		return TextPart{Text: pj.Text, Metadata: pj.Metadata}, nil
	case partTypeData:
		return DataPart{Data: pj.Data, Metadata: pj.Metadata}, nil
	case partTypeFile:
		if pj.File == nil {
			return nil, fmt.Errorf("file part without file")
		}
		return FilePart{File: *pj.File, Metadata: pj.Metadata}, nil
	case partTypeFunctionCall:
		if pj.FunctionCall == nil {
			return nil, fmt.Errorf("function_call part without call")
		}
		return FunctionCallPart{FunctionCall: *pj.FunctionCall, Metadata: pj.Metadata}, nil
	case partTypeFunctionResponse:
		if pj.FunctionResponse == nil {
			return nil, fmt.Errorf("function_response part without response")
		}
		return FunctionResponsePart{FunctionResponse: *pj.FunctionResponse, Metadata: pj.Metadata}, nil
	case partTypeCodeExecutionResult:
		if pj.CodeExecutionResult == nil {
			return nil, fmt.Errorf("code_execution_result part without result")
		}
		return CodeExecutionResultPart{Result: *pj.CodeExecutionResult, Metadata: pj.Metadata}, nil
	default:
		return nil, fmt.Errorf("unknown part type %q", pj.Type)
	}
}
