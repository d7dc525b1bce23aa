package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type requestShape string

const (
	// requestShapeFlat sends messages at the top level of the request body
	// against the chat completions deployment route.
	requestShapeFlat requestShape = "flat"
	// requestShapeWrapped sends instructions plus input items against the
	// responses route.
	requestShapeWrapped requestShape = "wrapped"
)

const (
	tokenParamMaxTokens           = "max_tokens"
	tokenParamMaxCompletionTokens = "max_completion_tokens"
	tokenParamMaxOutputTokens     = "max_output_tokens"
)

// Version thresholds at which the accepted token-limit field name changed.
const (
	flatTokenParamCutover    = "2025-01-01"
	wrappedTokenParamCutover = "2025-03-01"
	wrappedMinAPIVersion     = "2025-03-01-preview"
)

// negotiationState is one point in the parameter space the client negotiates
// over: which api version, which token-limit field name, and which request
// shape to send. The last combination the server accepted is remembered
// across requests.
type negotiationState struct {
	apiVersion string
	tokenParam string
	shape      requestShape
}

func (s negotiationState) key() string {
	return fmt.Sprintf("%s|%s|%s", s.apiVersion, s.tokenParam, s.shape)
}

// defaultTokenParam picks the token-limit field name believed to be accepted
// at a given api version, before the server has told us otherwise.
func defaultTokenParam(apiVersion string, shape requestShape) string {
	if shape == requestShapeWrapped {
		if compareAPIVersions(apiVersion, wrappedTokenParamCutover) >= 0 {
			return tokenParamMaxOutputTokens
		}
		return tokenParamMaxCompletionTokens
	}
	if compareAPIVersions(apiVersion, flatTokenParamCutover) >= 0 {
		return tokenParamMaxCompletionTokens
	}
	return tokenParamMaxTokens
}

// alternateTokenParam is the other field name worth trying for a shape when
// the current one is rejected.
func alternateTokenParam(state negotiationState) string {
	if state.shape == requestShapeWrapped {
		if state.tokenParam == tokenParamMaxOutputTokens {
			return tokenParamMaxCompletionTokens
		}
		return tokenParamMaxOutputTokens
	}
	if state.tokenParam == tokenParamMaxTokens {
		return tokenParamMaxCompletionTokens
	}
	return tokenParamMaxTokens
}

// compareAPIVersions orders dated versions of the form YYYY-MM-DD, with an
// optional -preview suffix that does not affect ordering. Unparseable
// versions compare as very old so a dated requirement always wins.
func compareAPIVersions(a, b string) int {
	ay, am, ad := parseAPIVersionDate(a)
	by, bm, bd := parseAPIVersionDate(b)
	if ay != by {
		return ay - by
	}
	if am != bm {
		return am - bm
	}
	return ad - bd
}

func parseAPIVersionDate(version string) (year, month, day int) {
	version = strings.TrimSuffix(strings.TrimSpace(version), "-preview")
	parts := strings.SplitN(version, "-", 3)
	if len(parts) != 3 {
		return 1900, 1, 1
	}
	year, errY := strconv.Atoi(parts[0])
	month, errM := strconv.Atoi(parts[1])
	day, errD := strconv.Atoi(parts[2])
	if errY != nil || errM != nil || errD != nil {
		return 1900, 1, 1
	}
	return year, month, day
}

type adjustmentKind int

const (
	adjustmentNone adjustmentKind = iota
	adjustmentSwapTokenParam
	adjustmentBumpAPIVersion
	adjustmentSwitchShape
)

type negotiationAdjustment struct {
	kind       adjustmentKind
	tokenParam string
	apiVersion string
	shape      requestShape
}

var apiVersionPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:-preview)?`)

// classifyAPIError inspects an error body and decides whether the request is
// worth retrying with an adjusted parameter. Matching is substring based
// because the exact wording is upstream's and changes between versions; an
// unrecognized body means the error is not a negotiation matter.
func classifyAPIError(statusErr *APIStatusError, state negotiationState) negotiationAdjustment {
	body := statusErr.Body

	// "Unsupported parameter: 'max_tokens' is not supported with this model."
	// Only a complaint about the field we actually sent triggers a swap;
	// anything else would loop.
	if unsupportedParameter(body, state.tokenParam) {
		return negotiationAdjustment{
			kind:       adjustmentSwapTokenParam,
			tokenParam: alternateTokenParam(state),
		}
	}

	if required, ok := requiredAPIVersion(body); ok && compareAPIVersions(state.apiVersion, required) < 0 {
		return negotiationAdjustment{
			kind:       adjustmentBumpAPIVersion,
			apiVersion: required,
		}
	}

	// the server rejecting the message container itself means the other
	// request shape is expected
	if state.shape == requestShapeFlat && unsupportedParameter(body, "messages") {
		return negotiationAdjustment{kind: adjustmentSwitchShape, shape: requestShapeWrapped}
	}
	if state.shape == requestShapeWrapped && unsupportedParameter(body, "input") {
		return negotiationAdjustment{kind: adjustmentSwitchShape, shape: requestShapeFlat}
	}

	return negotiationAdjustment{kind: adjustmentNone}
}

func unsupportedParameter(body, param string) bool {
	for _, prefix := range []string{"Unsupported parameter", "Unknown parameter", "Unrecognized request argument"} {
		if strings.Contains(body, prefix) && strings.Contains(body, fmt.Sprintf("'%s'", param)) {
			return true
		}
	}
	return false
}

// requiredAPIVersion extracts the minimum api version named by an error body
// of the "requires api version YYYY-MM-DD or later" family.
func requiredAPIVersion(body string) (string, bool) {
	lower := strings.ToLower(body)
	if !strings.Contains(lower, "api version") && !strings.Contains(lower, "api-version") {
		return "", false
	}
	mentionsMinimum := strings.Contains(lower, "requires") ||
		strings.Contains(lower, "minimum") ||
		strings.Contains(lower, "or later") ||
		strings.Contains(lower, "not supported")
	if !mentionsMinimum {
		return "", false
	}
	version := apiVersionPattern.FindString(body)
	return version, version != ""
}

// applyAdjustment produces the next state to attempt. An api version bump
// resets the token-param guess, since the accepted field name is a function
// of the version.
func (s negotiationState) applyAdjustment(adjustment negotiationAdjustment) negotiationState {
	next := s
	switch adjustment.kind {
	case adjustmentSwapTokenParam:
		next.tokenParam = adjustment.tokenParam
	case adjustmentBumpAPIVersion:
		next.apiVersion = adjustment.apiVersion
		next.tokenParam = defaultTokenParam(next.apiVersion, next.shape)
	case adjustmentSwitchShape:
		next.shape = adjustment.shape
		if next.shape == requestShapeWrapped && compareAPIVersions(next.apiVersion, wrappedMinAPIVersion) < 0 {
			next.apiVersion = wrappedMinAPIVersion
		}
		next.tokenParam = defaultTokenParam(next.apiVersion, next.shape)
	}
	return next
}
