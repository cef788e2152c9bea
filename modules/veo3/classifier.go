package veo3

import "strings"

// Category of a classified failure.
type Category string

const (
	CategoryCredential Category = "credential"
	CategorySafety     Category = "safety"
	CategoryQuota      Category = "quota"
	CategoryTimeout    Category = "timeout"
	CategoryNetwork    Category = "network"
	CategoryServer     Category = "server"
	CategoryBadConfig  Category = "bad_config"
	CategoryUnknown    Category = "unknown"
)

// ClassifiedError is the user-facing view of a failed attempt.
type ClassifiedError struct {
	Category                 Category `json:"category"`
	Message                  string   `json:"message"`
	RequiresCredentialPrompt bool     `json:"requiresCredentialPrompt"`
}

type classificationRule struct {
	patterns []string
	result   ClassifiedError
}

// first match wins
var classificationRules = []classificationRule{
	{
		patterns: []string{"api key not valid", "api_key_invalid", "permission denied", "permission_denied", "requested entity was not found"},
		result: ClassifiedError{
			Category:                 CategoryCredential,
			Message:                  "Your API key is invalid or does not have permission to use this model. Please select a valid API key and try again.",
			RequiresCredentialPrompt: true,
		},
	},
	{
		patterns: []string{"prompt may have been blocked", "no videos were generated"},
		result: ClassifiedError{
			Category: CategorySafety,
			Message:  "No video was generated. Your prompt or image may have been blocked by safety filters; try rephrasing it.",
		},
	},
	{
		patterns: []string{"quota", "rate limit", "resource_exhausted", "resource exhausted"},
		result: ClassifiedError{
			Category: CategoryQuota,
			Message:  "You have exceeded your quota or rate limit. Please wait a moment and try again.",
		},
	},
	{
		patterns: []string{"timed out", "timeout", "deadline exceeded"},
		result: ClassifiedError{
			Category: CategoryTimeout,
			Message:  "Video generation timed out. The model took too long to respond; please try again.",
		},
	},
	{
		patterns: []string{"failed to fetch"},
		result: ClassifiedError{
			Category: CategoryNetwork,
			Message:  "Network error: failed to fetch from the video service. Check your connection and try again.",
		},
	},
	{
		patterns: []string{"internal", "model error"},
		result: ClassifiedError{
			Category: CategoryServer,
			Message:  "The video model hit a temporary server error. Please try again in a few moments.",
		},
	},
	{
		patterns: []string{"invalid argument", "invalid_argument"},
		result: ClassifiedError{
			Category: CategoryBadConfig,
			Message:  "The request was rejected as invalid. Check the aspect ratio, duration and resolution settings.",
		},
	},
}

// Classify maps any error to exactly one user-facing classification. It never panics.
func Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{Category: CategoryUnknown, Message: "An unknown error occurred."}
	}

	raw := err.Error()
	msg := strings.ToLower(raw)

	for _, rule := range classificationRules {
		for _, p := range rule.patterns {
			if strings.Contains(msg, p) {
				return rule.result
			}
		}
	}

	if strings.TrimSpace(raw) == "" {
		raw = "An unknown error occurred."
	}
	return ClassifiedError{Category: CategoryUnknown, Message: raw}
}
