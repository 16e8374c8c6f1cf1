package wbrbcache

import "github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/wbrblog"

// engineLog wraps a *wbrblog.Core with the specific event vocabulary the
// cache engine emits, so the rest of the package logs by name instead of by
// hand-building wbrblog.Event values at every call site. It implements both
// logCore (for registry.go) and spiSink (for policy.go)'s narrow interfaces.
type engineLog struct {
	core *wbrblog.Core
}

func newEngineLog(core *wbrblog.Core) *engineLog {
	return &engineLog{core: core}
}

func (l *engineLog) logNotPresentRemovalAttempt(key any) {
	l.core.LogOrdinal(wbrblog.OrdinalNotPresentElementRemovalAttempt, key, nil, "")
}

func (l *engineLog) logSPIException(hookName string, key any, err error) {
	m := wbrblog.SPIExceptionMessage(hookName, wbrblog.ERROR)
	l.core.LogNonStandard(m.Severity, m.Name, err, "")
}

func (l *engineLog) logUnexpectedCacheStateForReadMerge(key any, state EntryStatus) {
	l.core.LogOrdinal(wbrblog.OrdinalUnexpectedCacheStateForReadMerge, key, nil, "state="+state.String())
}

func (l *engineLog) logTooManyRemovedFromCacheRetries(key any) {
	l.core.LogOrdinal(wbrblog.OrdinalTooManyRemovedFromCacheStateRetries, key, nil, "")
}

func (l *engineLog) logResyncIsTooLate(key any) {
	l.core.LogOrdinal(wbrblog.OrdinalResyncIsTooLate, key, nil, "")
}

func (l *engineLog) logTooManyCacheElementUpdates(key any) {
	l.core.LogOrdinal(wbrblog.OrdinalTooManyCacheElementUpdates, key, nil, "")
}

func (l *engineLog) logStorageWriteFail(key any, err error) {
	l.core.LogOrdinal(wbrblog.OrdinalStorageWriteFail, key, err, "")
}

func (l *engineLog) logStorageWriteFailFinal(key any, err error) {
	l.core.LogOrdinal(wbrblog.OrdinalStorageWriteFailFinal, key, err, "")
}

func (l *engineLog) logSplitForWriteFail(key any, err error) {
	l.core.LogOrdinal(wbrblog.OrdinalSplitForWriteFail, key, err, "")
}

func (l *engineLog) logApplyUpdateFail(key any, err error) {
	l.core.LogOrdinal(wbrblog.OrdinalApplyUpdateFail, key, err, "")
}

func (l *engineLog) logWriteFailedFinalDataDiscarded(key any) {
	l.core.LogOrdinal(wbrblog.OrdinalWriteFailedFinalDataDiscarded, key, nil, "")
}

func (l *engineLog) logMainQueueNonStandard(key any) {
	l.core.LogOrdinal(wbrblog.OrdinalMainQueueNonStandard, key, nil, "")
}

func (l *engineLog) logReturnQueueNonStandard(key any) {
	l.core.LogOrdinal(wbrblog.OrdinalReturnQueueNonStandard, key, nil, "")
}

func (l *engineLog) logFlushSpooldownNotAchieved() {
	l.core.LogOrdinal(wbrblog.OrdinalFlushSpooldownNotAchieved, nil, nil, "")
}

func (l *engineLog) logShutdownSpooldownNotAchieved() {
	l.core.LogOrdinal(wbrblog.OrdinalShutdownSpooldownNotAchieved, nil, nil, "")
}

func (l *engineLog) logShutdownCompleted() {
	l.core.LogOrdinal(wbrblog.OrdinalShutdownCompleted, nil, nil, "")
}

func (l *engineLog) logProcessorUnexpectedInterrupt(worker string, err error) {
	l.core.LogOrdinal(wbrblog.OrdinalProcessorUnexpectedInterrupt, nil, err, "worker="+worker)
}
