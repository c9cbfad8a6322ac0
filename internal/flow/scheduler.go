package flow

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/streamspace-dev/pluginhost/internal/logger"
)

// Scheduler drives trigger nodes of type "schedule" (spec §6 node data
// shapes list `triggerType: "manual"|…`; "schedule" is this module's
// extension for time-driven flows). One shared cron.Cron instance
// backs every scheduled flow, grounded on the teacher's
// api/internal/plugins/scheduler.go PluginScheduler, which wraps a
// single process-wide cron.Cron rather than one goroutine per job;
// here the job namespace is flow ids rather than per-plugin job names.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	log    zerolog.Logger

	entries map[string]cron.EntryID
}

// NewScheduler builds a Scheduler driving engine.
func NewScheduler(engine *Engine, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		engine:  engine,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// DefaultScheduler builds a Scheduler using the package's component
// logger.
func DefaultScheduler(engine *Engine) *Scheduler {
	return NewScheduler(engine, logger.Component("flow-scheduler"))
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to return.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// Sync scans every stored flow definition for a trigger node whose
// data is `{triggerType: "schedule", config: {cron: "<expr>"}}` and
// (re)schedules it, removing the cron entry for any flow that no
// longer declares a schedule trigger.
func (s *Scheduler) Sync() {
	seen := make(map[string]bool)
	for _, def := range s.engine.GetAll() {
		trigger, ok := findTriggerNode(def)
		if !ok || stringField(trigger.Data, "triggerType") != "schedule" {
			continue
		}
		config, _ := trigger.Data["config"].(map[string]any)
		expr := stringField(config, "cron")
		if expr == "" {
			continue
		}
		seen[def.ID] = true
		if err := s.schedule(def.ID, expr); err != nil {
			s.log.Error().Err(err).Str("flowId", def.ID).Msg("invalid schedule trigger cron expression")
		}
	}

	for flowID := range s.entries {
		if !seen[flowID] {
			s.unschedule(flowID)
		}
	}
}

func (s *Scheduler) schedule(flowID, cronExpr string) error {
	s.unschedule(flowID)

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.runOnce(flowID)
	})
	if err != nil {
		return err
	}
	s.entries[flowID] = entryID
	return nil
}

func (s *Scheduler) unschedule(flowID string) {
	if entryID, ok := s.entries[flowID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, flowID)
	}
}

func (s *Scheduler) runOnce(flowID string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("flowId", flowID).Msg("scheduled flow execution panicked")
		}
	}()

	if _, err := s.engine.Execute(context.Background(), flowID, map[string]any{}); err != nil {
		s.log.Error().Err(err).Str("flowId", flowID).Msg("scheduled flow execution failed to start")
	}
}

// IsScheduled reports whether flowID currently has an active cron
// entry.
func (s *Scheduler) IsScheduled(flowID string) bool {
	_, ok := s.entries[flowID]
	return ok
}
