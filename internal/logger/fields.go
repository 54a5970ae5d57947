package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldJobID         = "job_id"
	FieldWorkerID      = "worker_id"
	FieldEmployerID    = "employer_id"
	FieldApplicationID = "application_id"
	FieldProfileID     = "profile_id"
	FieldRole          = "role"
	FieldStatus        = "status"

	// FieldProvider is the structured log field key for the scoring provider name.
	FieldProvider = "scorer_provider"
	// FieldModel is the structured log field key for the scoring model identifier.
	FieldModel = "scorer_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger, defaulting to
// a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

func ProfileFields(profileID, role string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProfileID, Value: profileID},
		StringField{Key: FieldRole, Value: role},
	)
}

func JobFields(jobID, employerID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldJobID, Value: jobID},
		StringField{Key: FieldEmployerID, Value: employerID},
	)
}

// ApplicationFields describes an application and the parties involved.
func ApplicationFields(applicationID, jobID, workerID, status string) []zap.Field {
	return StringFields(
		StringField{Key: FieldApplicationID, Value: applicationID},
		StringField{Key: FieldJobID, Value: jobID},
		StringField{Key: FieldWorkerID, Value: workerID},
		StringField{Key: FieldStatus, Value: status},
	)
}

// CommonFields returns standard zap fields that describe the scoring provider and model.
// Empty values are ignored to keep log entries compact when information is missing.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the provider fields to the provided logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}
