package events

import (
	"encoding/json"
	"fmt"
)

// SetToolCompletedData sets the Data field with ToolCompletedData in a type-safe way.
func (e *AgentEvent) SetToolCompletedData(data ToolCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ToolCompletedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetToolCompletedData retrieves ToolCompletedData from the Data field.
func (e *AgentEvent) GetToolCompletedData() (*ToolCompletedData, error) {
	var data ToolCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ToolCompletedData: %w", err)
	}
	return &data, nil
}

// SetApprovalDecidedData sets the Data field with ApprovalDecidedData in a type-safe way.
func (e *AgentEvent) SetApprovalDecidedData(data ApprovalDecidedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ApprovalDecidedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetApprovalDecidedData retrieves ApprovalDecidedData from the Data field.
func (e *AgentEvent) GetApprovalDecidedData() (*ApprovalDecidedData, error) {
	var data ApprovalDecidedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ApprovalDecidedData: %w", err)
	}
	return &data, nil
}

// SetTaskDelegatedData sets the Data field with TaskDelegatedData in a type-safe way.
func (e *AgentEvent) SetTaskDelegatedData(data TaskDelegatedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert TaskDelegatedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetTaskDelegatedData retrieves TaskDelegatedData from the Data field.
func (e *AgentEvent) GetTaskDelegatedData() (*TaskDelegatedData, error) {
	var data TaskDelegatedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse TaskDelegatedData: %w", err)
	}
	return &data, nil
}

// SetModelRetryData sets the Data field with ModelRetryData in a type-safe way.
func (e *AgentEvent) SetModelRetryData(data ModelRetryData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ModelRetryData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetModelRetryData retrieves ModelRetryData from the Data field.
func (e *AgentEvent) GetModelRetryData() (*ModelRetryData, error) {
	var data ModelRetryData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ModelRetryData: %w", err)
	}
	return &data, nil
}

// SetSignalPublishedData sets the Data field with SignalPublishedData in a type-safe way.
func (e *AgentEvent) SetSignalPublishedData(data SignalPublishedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert SignalPublishedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetSignalPublishedData retrieves SignalPublishedData from the Data field.
func (e *AgentEvent) GetSignalPublishedData() (*SignalPublishedData, error) {
	var data SignalPublishedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SignalPublishedData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
