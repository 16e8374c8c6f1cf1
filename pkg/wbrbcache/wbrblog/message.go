package wbrblog

// Ordinal identifies one of the cache's built-in, enumerated message types.
// Each ordinal carries a fixed severity and throttleability; this mirrors the
// source system's message enum, minus the deprecated non-standard variants
// (those are handled by LogNonStandard using a free-form Classifier instead
// of an Ordinal).
type Ordinal int

const (
	OrdinalUnknown Ordinal = iota

	// Throttling/core events.
	OrdinalMessagesMaySkipped
	OrdinalPreviousMessagesSkipped

	// C2/C4 read-path events.
	OrdinalUnexpectedCacheStateForReadMerge
	OrdinalTooManyRemovedFromCacheStateRetries
	OrdinalNotPresentElementRemovalAttempt
	OrdinalResyncIsTooLate
	OrdinalTooManyCacheElementUpdates

	// C5 write-path events.
	OrdinalStorageWriteFail
	OrdinalStorageWriteFailFinal
	OrdinalSplitForWriteFail
	OrdinalApplyUpdateFail

	// C6 main-queue events.
	OrdinalWriteFailedFinalDataDiscarded
	OrdinalMainQueueNonStandard

	// C7 return-queue events.
	OrdinalReturnQueueNonStandard

	// C8 lifecycle events.
	OrdinalFlushSpooldownNotAchieved
	OrdinalShutdownSpooldownNotAchieved
	OrdinalShutdownCompleted

	// C9 SPI guard events.
	OrdinalSPIException

	// Worker-loop events.
	OrdinalProcessorUnexpectedInterrupt

	// Test-only event, retained per the spec's open question: the source's
	// TEST_WARN has no documented runtime role beyond exercising the
	// throttling/logging path in tests, so it is kept scoped identically
	// here rather than guessed at and expanded.
	OrdinalTestWarn

	numOrdinals
)

// Message describes one built-in message type: its fixed severity and
// whether it participates in throttling. Throttling-control events
// (OrdinalMessagesMaySkipped, OrdinalPreviousMessagesSkipped) are
// Throttleable=false by hard invariant — throttling events must never
// themselves be throttled.
type Message struct {
	Ordinal     Ordinal
	Severity    Severity
	Throttleable bool
	Name        string
}

var builtinMessages = map[Ordinal]Message{
	OrdinalMessagesMaySkipped:                  {OrdinalMessagesMaySkipped, WARN, false, "MESSAGES_MAY_BE_SKIPPED"},
	OrdinalPreviousMessagesSkipped:              {OrdinalPreviousMessagesSkipped, WARN, false, "PREVIOUS_MESSAGES_SKIPPED"},
	OrdinalUnexpectedCacheStateForReadMerge:     {OrdinalUnexpectedCacheStateForReadMerge, ERROR, true, "UNEXPECTED_CACHE_STATE_FOR_READ_MERGE"},
	OrdinalTooManyRemovedFromCacheStateRetries:  {OrdinalTooManyRemovedFromCacheStateRetries, ERROR, true, "TOO_MANY_REMOVED_FROM_CACHE_STATE_RETRIES"},
	OrdinalNotPresentElementRemovalAttempt:      {OrdinalNotPresentElementRemovalAttempt, ERROR, true, "NOT_PRESENT_ELEMENT_REMOVAL_ATTEMPT"},
	OrdinalResyncIsTooLate:                      {OrdinalResyncIsTooLate, EXTERNAL_DATA_LOSS, true, "RESYNC_IS_TOO_LATE"},
	OrdinalTooManyCacheElementUpdates:           {OrdinalTooManyCacheElementUpdates, EXTERNAL_WARN, true, "TOO_MANY_CACHE_ELEMENT_UPDATES"},
	OrdinalStorageWriteFail:                     {OrdinalStorageWriteFail, EXTERNAL_WARN, true, "STORAGE_WRITE_FAIL"},
	OrdinalStorageWriteFailFinal:                {OrdinalStorageWriteFailFinal, EXTERNAL_DATA_LOSS, true, "STORAGE_WRITE_FAIL_FINAL"},
	OrdinalSplitForWriteFail:                    {OrdinalSplitForWriteFail, EXTERNAL_DATA_LOSS, true, "SPLIT_FOR_WRITE_FAIL"},
	OrdinalApplyUpdateFail:                      {OrdinalApplyUpdateFail, EXTERNAL_DATA_LOSS, true, "APPLY_UPDATE_FAIL"},
	OrdinalWriteFailedFinalDataDiscarded:        {OrdinalWriteFailedFinalDataDiscarded, DATA_LOSS, true, "WRITE_FAILED_FINAL_DATA_DISCARDED"},
	OrdinalMainQueueNonStandard:                 {OrdinalMainQueueNonStandard, EXTERNAL_WARN, true, "MAIN_QUEUE_NON_STANDARD"},
	OrdinalReturnQueueNonStandard:               {OrdinalReturnQueueNonStandard, EXTERNAL_WARN, true, "RETURN_QUEUE_NON_STANDARD"},
	OrdinalFlushSpooldownNotAchieved:            {OrdinalFlushSpooldownNotAchieved, EXTERNAL_WARN, true, "FLUSH_SPOOLDOWN_NOT_ACHIEVED"},
	OrdinalShutdownSpooldownNotAchieved:         {OrdinalShutdownSpooldownNotAchieved, EXTERNAL_DATA_LOSS, true, "SHUTDOWN_SPOOLDOWN_NOT_ACHIEVED"},
	OrdinalShutdownCompleted:                    {OrdinalShutdownCompleted, INFO, true, "SHUTDOWN_COMPLETED"},
	OrdinalSPIException:                         {OrdinalSPIException, ERROR, true, "SPI_EXCEPTION"},
	OrdinalProcessorUnexpectedInterrupt:         {OrdinalProcessorUnexpectedInterrupt, ERROR, true, "PROCESSOR_UNEXPECTED_INTERRUPT"},
	OrdinalTestWarn:                             {OrdinalTestWarn, WARN, true, "TEST_WARN"},
}

// Lookup returns the Message descriptor for a built-in ordinal. The second
// return is false for unknown ordinals (callers should treat that as an
// internal programming error, not a throttling key).
func Lookup(o Ordinal) (Message, bool) {
	m, ok := builtinMessages[o]
	return m, ok
}

// SPIExceptionMessage builds the per-hook SPI_EXCEPTION_<hookName> message
// used by the guard wrapper in policy.go. Each SPI hook gets its own
// classifier string so diagnostics can target a specific decision site
// without the worker aborting.
func SPIExceptionMessage(hookName string, severity Severity) Message {
	return Message{
		Ordinal:      OrdinalSPIException,
		Severity:     severity,
		Throttleable: true,
		Name:         "SPI_EXCEPTION_" + hookName,
	}
}
