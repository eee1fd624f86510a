package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// InvocationEvent is the immutable input of one run, decoded from an AWS
// Config custom rule event.
type InvocationEvent struct {
	AccountID        string
	ExecutionRoleARN string
	ConfigRuleARN    string
	ConfigRuleName   string

	// ResultToken is required by the AWS Config sink. Empty when the event
	// did not carry one.
	ResultToken string

	// RuleParameters is the opaque parameter payload of the rule.
	RuleParameters map[string]any

	// NotificationCreationTime is the ordering timestamp of every record
	// produced by this run.
	NotificationCreationTime time.Time
	MessageType              string
}

type configRuleEnvelope struct {
	AccountID        string          `json:"accountId"`
	ExecutionRoleArn string          `json:"executionRoleArn"`
	ConfigRuleArn    string          `json:"configRuleArn"`
	ConfigRuleName   string          `json:"configRuleName"`
	ResultToken      string          `json:"resultToken"`
	RuleParameters   json.RawMessage `json:"ruleParameters"`
	InvokingEvent    json.RawMessage `json:"invokingEvent"`
}

type invokingEvent struct {
	NotificationCreationTime string `json:"notificationCreationTime"`
	MessageType              string `json:"messageType"`
}

// ParseInvocationEvent decodes a Config rule event. invokingEvent and
// ruleParameters are accepted both as JSON objects and as JSON-encoded
// strings, which is how AWS Config delivers them.
func ParseInvocationEvent(data []byte) (*InvocationEvent, error) {
	var env configRuleEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrInvalidEvent, err)
	}

	var inv invokingEvent
	if err := decodeEmbedded(env.InvokingEvent, &inv); err != nil {
		return nil, fmt.Errorf("%w: decode invokingEvent: %v", ErrInvalidEvent, err)
	}

	params := map[string]any{}
	if err := decodeEmbedded(env.RuleParameters, &params); err != nil {
		return nil, fmt.Errorf("%w: decode ruleParameters: %v", ErrInvalidEvent, err)
	}

	ev := &InvocationEvent{
		AccountID:        env.AccountID,
		ExecutionRoleARN: env.ExecutionRoleArn,
		ConfigRuleARN:    env.ConfigRuleArn,
		ConfigRuleName:   env.ConfigRuleName,
		ResultToken:      env.ResultToken,
		RuleParameters:   params,
		MessageType:      inv.MessageType,
	}

	if inv.NotificationCreationTime == "" {
		return nil, fmt.Errorf("%w: invokingEvent.notificationCreationTime is missing", ErrInvalidEvent)
	}
	ts, err := time.Parse(time.RFC3339Nano, inv.NotificationCreationTime)
	if err != nil {
		return nil, fmt.Errorf("%w: notificationCreationTime %q: %v", ErrInvalidEvent, inv.NotificationCreationTime, err)
	}
	ev.NotificationCreationTime = ts.UTC()

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Validate checks the fields every run depends on.
func (e *InvocationEvent) Validate() error {
	switch {
	case e.ExecutionRoleARN == "":
		return fmt.Errorf("%w: executionRoleArn is required", ErrInvalidEvent)
	case e.ConfigRuleARN == "":
		return fmt.Errorf("%w: configRuleArn is required", ErrInvalidEvent)
	case e.NotificationCreationTime.IsZero():
		return fmt.Errorf("%w: notification creation time is required", ErrInvalidEvent)
	}
	return nil
}

// HomeRegion returns the region encoded in the 4th colon-delimited segment
// of the rule ARN (arn:aws:config:<region>:...).
func (e *InvocationEvent) HomeRegion() (string, error) {
	parts := strings.Split(e.ConfigRuleARN, ":")
	if len(parts) < 4 || parts[3] == "" {
		return "", fmt.Errorf("%w: configRuleArn %q has no region segment", ErrInvalidEvent, e.ConfigRuleARN)
	}
	return parts[3], nil
}

// decodeEmbedded unmarshals raw into v. A JSON string is unwrapped first;
// absent, null and empty-string values leave v untouched.
func decodeEmbedded(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		raw = json.RawMessage(s)
	}
	return json.Unmarshal(raw, v)
}
