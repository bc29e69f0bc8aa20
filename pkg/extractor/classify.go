package extractor

import (
	"fmt"
	"strings"

	errs "xscraper/pkg/errors"
)

// maxDiagnosticLen caps how much raw extractor output ends up in an
// error message.
const maxDiagnosticLen = 300

// Classify turns raw extractor output into a typed error. All the
// substring matching lives here; the original diagnostic line is
// preserved in Message and the hint is advice, never a replacement.
func Classify(output, target string) *errs.Error {
	outputLower := strings.ToLower(output)

	// The extractor mixes log lines with its diagnostics. The first
	// "error:"/"exception" line is the one worth showing.
	var errorLine string
	for _, line := range strings.Split(output, "\n") {
		lineLower := strings.ToLower(line)
		if strings.Contains(lineLower, "error:") || strings.Contains(lineLower, "exception") {
			errorLine = strings.TrimSpace(line)
			break
		}
	}
	if errorLine == "" {
		errorLine = strings.TrimSpace(output)
	}
	if len(errorLine) > maxDiagnosticLen {
		errorLine = errorLine[:maxDiagnosticLen] + "..."
	}

	switch {
	case strings.Contains(outputLower, "unable to retrieve tweets from this timeline"):
		return errs.New(errs.ErrorTypeRateLimit, errorLine,
			"End of timeline reached or rate limited - data already fetched has been saved")
	case strings.Contains(outputLower, "rate limit") || strings.Contains(output, "429"):
		return errs.New(errs.ErrorTypeRateLimit, errorLine,
			"Wait 5-15 minutes before retrying")
	case strings.Contains(output, "401") || strings.Contains(outputLower, "unauthorized"):
		return errs.New(errs.ErrorTypeAuth, errorLine,
			"Auth token may be invalid or expired")
	case strings.Contains(output, "404"):
		return errs.New(errs.ErrorTypeNotFound, errorLine,
			fmt.Sprintf("@%s may not exist or is suspended", CleanUsername(target)))
	case strings.Contains(outputLower, "protected") || strings.Contains(output, "403"):
		return errs.New(errs.ErrorTypeProtected, errorLine,
			"Protected account - need to follow and use auth token")
	case strings.Contains(outputLower, "timed out") || strings.Contains(outputLower, "connection"):
		return errs.New(errs.ErrorTypeNetwork, errorLine, "Check network connectivity and retry")
	default:
		return errs.New(errs.ErrorTypeUnknown, errorLine, "")
	}
}

// extractJSON pulls the first complete JSON object out of mixed
// stdout, skipping any log lines before it.
func extractJSON(output string) string {
	start := strings.Index(output, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(output); i++ {
		switch output[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return output[start : i+1]
			}
		}
	}

	return ""
}
