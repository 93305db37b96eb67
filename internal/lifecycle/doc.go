// Package lifecycle repairs shared stores at suite and test boundaries.
//
// A Cleaner moves through Unstarted, SuiteActive, TestActive and
// SuiteEnded:
//
//	SuiteStart            Unstarted|SuiteEnded   -> SuiteActive
//	TestStart(strategy)   SuiteActive            -> TestActive
//	TestEnd(strategy)     TestActive             -> SuiteActive
//	ResetSuite(strategy)  SuiteActive|TestActive -> SuiteActive
//	SuiteEnd(strategy)    SuiteActive|TestActive -> SuiteEnded
//
// Ending or resetting the suite while a test is open ends the test first.
// Any other call returns a *TransitionError.
//
// KeyCleaner implements the pseudo-delete strategy for Redis: it deletes
// only keys tests created and never deletes a key present in the suite
// baseline. Manager runs several cleaners, one per store, isolating their
// failures from each other.
package lifecycle
