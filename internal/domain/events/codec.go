package events

import (
	"encoding/json"
	"fmt"
)

// DecodeData unmarshals a stored or transported payload into the data type of eventType.
// Unknown types decode into a generic map.
func DecodeData(eventType string, raw []byte) (interface{}, error) {
	switch eventType {
	case TypeSagaStarted:
		var data SagaStartedData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s data: %w", eventType, err)
		}
		return data, nil
	case TypeStageProcessed, TypeStageCompensated:
		var data StageOutcomeData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s data: %w", eventType, err)
		}
		return data, nil
	case TypeSagaFinished:
		var data SagaFinishedData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s data: %w", eventType, err)
		}
		return data, nil
	case TypeStageCommandRequested:
		var data StageCommandData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s data: %w", eventType, err)
		}
		return data, nil
	default:
		var data map[string]interface{}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
		return data, nil
	}
}
