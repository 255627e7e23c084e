package prlgl

import (
	"errors"

	"github.com/prlgl/prlgl/analysis"
	"github.com/prlgl/prlgl/crew"
	"github.com/prlgl/prlgl/llm"
	"github.com/prlgl/prlgl/rules"
)

// Sentinel errors. Several alias the subpackage sentinel they originate
// from, so errors.Is matches under either name.
var (
	// ErrProvider is returned when the LLM provider call fails
	// (network, auth, rate limit, 5xx).
	ErrProvider = llm.ErrProvider

	// ErrEmptyResponse is returned when the provider replies with no content.
	ErrEmptyResponse = llm.ErrEmptyResponse

	// ErrTimeout is returned when a gateway call exceeds its per-call deadline.
	ErrTimeout = llm.ErrTimeout

	// ErrMalformedReply is returned when an LLM reply cannot be parsed as
	// the expected structured value, after the corrective retry.
	ErrMalformedReply = analysis.ErrMalformedReply

	// ErrUnknownJurisdiction is returned in strict mode when rental details
	// name a jurisdiction absent from the jurisdictional rules.
	ErrUnknownJurisdiction = rules.ErrUnknownJurisdiction

	// ErrInvalidDetails is returned when rental details fail validation.
	ErrInvalidDetails = crew.ErrInvalidDetails

	// ErrStageFailed is returned when a drafting crew stage fails; the whole
	// run fails with it, no partial contract is returned.
	ErrStageFailed = crew.ErrStageFailed

	// ErrIndexBuild is returned when a document fails to load or embed.
	ErrIndexBuild = errors.New("prlgl: index build failed")

	// ErrParsingFailed is returned when a document's content cannot be
	// extracted.
	ErrParsingFailed = errors.New("prlgl: document parsing failed")

	// ErrUnsupportedFormat is returned for unrecognized document formats.
	ErrUnsupportedFormat = errors.New("prlgl: unsupported document format")

	// ErrInvalidConfig is returned for invalid configuration values or
	// missing credentials, before any request is accepted.
	ErrInvalidConfig = errors.New("prlgl: invalid configuration")
)
