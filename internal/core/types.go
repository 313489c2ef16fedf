package core

import "spectrabench/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Network            = domain.Network
	Algorithm          = domain.Algorithm
	SystemConfig       = domain.SystemConfig
	Experiment         = domain.Experiment
	Visualization      = domain.Visualization
	Performance        = domain.AlgorithmPerformance
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)
