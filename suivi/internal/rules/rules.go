// Package rules evaluates a snapshot against the declarative suggestion
// catalogue and picks at most one winner.
//
// Evaluation is a pure function of a single snapshot: no I/O, no clock, no
// randomness. Two runs on the same snapshot always pick the same suggestion.
package rules

import (
	"fmt"
	"sort"

	"github.com/hazyhaar/praxis/suivi/internal/store"
)

// Suggestion types. ScheduleCheckIn is reserved for practitioner-initiated
// follow-ups and has no automatic rule.
const (
	TypeCrisisProtocol        = "crisis_protocol"
	TypePauseExposure         = "pause_exposure"
	TypeCheckAdherence        = "check_adherence"
	TypeEvaluatePace          = "evaluate_pace"
	TypeCognitiveIntervention = "cognitive_intervention"
	TypeSimplifyTasks         = "simplify_tasks"
	TypeEmotionalRegulation   = "emotional_regulation"
	TypeAcknowledgeRecovery   = "acknowledge_recovery"
	TypeReviewStagnantPhase   = "review_stagnant_phase"
	TypeReengagePatient       = "reengage_patient"
	TypeReviewFlatTrend       = "review_flat_trend"
	TypeCelebrateProgress     = "celebrate_progress"
	TypeScheduleCheckIn       = "schedule_check_in"
)

// Candidate is a rule that fired for a snapshot.
type Candidate struct {
	Type     string
	Title    string
	Priority int
	Reasons  []string
}

// Rule pairs a predicate with the suggestion it produces. Predicates treat a
// nil dimension as "no opinion": a rule never fires on unobserved data.
type Rule struct {
	Name     string
	Type     string
	Priority int
	When     func(s *store.Snapshot) bool
	Reasons  func(s *store.Snapshot) []string
	Title    string
}

// Catalogue ordered by declaration: ties on priority resolve to the earliest
// declared rule, so this order is part of the contract.
var catalogue = []Rule{
	{
		Name: "crisis", Type: TypeCrisisProtocol, Priority: 10,
		Title: "Déclencher le protocole de crise",
		When:  func(s *store.Snapshot) bool { return s.CrisisFlag },
		Reasons: func(s *store.Snapshot) []string {
			return []string{"crisis flag raised by the latest event"}
		},
	},
	{
		Name: "overload", Type: TypePauseExposure, Priority: 9,
		Title: "Suspendre les exercices d'exposition",
		When: func(s *store.Snapshot) bool {
			return above(s.EmotionalLoad, 0.8) && above(s.Activation, 0.75)
		},
		Reasons: func(s *store.Snapshot) []string {
			return []string{
				fmt.Sprintf("emotional load %.2f above 0.80", *s.EmotionalLoad),
				fmt.Sprintf("activation %.2f above 0.75", *s.Activation),
			}
		},
	},
	{
		Name: "low-adherence", Type: TypeCheckAdherence, Priority: 8,
		Title: "Vérifier l'adhésion aux tâches",
		When:  func(s *store.Snapshot) bool { return below(s.TaskAdherence, 0.3) },
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("task adherence %.2f below 0.30", *s.TaskAdherence)}
		},
	},
	{
		Name: "relapse", Type: TypeEvaluatePace, Priority: 8,
		Title: "Réévaluer le rythme de progression",
		When: func(s *store.Snapshot) bool {
			return s.FlexTrend == store.TrendDown && s.RecoveryTime != nil && *s.RecoveryTime == 0
		},
		Reasons: func(s *store.Snapshot) []string {
			return []string{"downward trend with no recovery observed"}
		},
	},
	{
		Name: "rigidity", Type: TypeCognitiveIntervention, Priority: 7,
		Title: "Proposer un travail de restructuration cognitive",
		When:  func(s *store.Snapshot) bool { return above(s.CognitiveRigidity, 0.7) },
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("cognitive rigidity %.2f above 0.70", *s.CognitiveRigidity)}
		},
	},
	{
		Name: "struggling-adherence", Type: TypeSimplifyTasks, Priority: 6,
		Title: "Simplifier les tâches assignées",
		When: func(s *store.Snapshot) bool {
			return s.TaskAdherence != nil && *s.TaskAdherence >= 0.3 && *s.TaskAdherence < 0.5
		},
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("task adherence %.2f between 0.30 and 0.50", *s.TaskAdherence)}
		},
	},
	{
		Name: "elevated-load", Type: TypeEmotionalRegulation, Priority: 6,
		Title: "Introduire des exercices de régulation émotionnelle",
		When: func(s *store.Snapshot) bool {
			return s.EmotionalLoad != nil && *s.EmotionalLoad > 0.6 && *s.EmotionalLoad <= 0.8
		},
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("emotional load %.2f in the elevated band", *s.EmotionalLoad)}
		},
	},
	{
		Name: "sustained-recovery", Type: TypeAcknowledgeRecovery, Priority: 5,
		Title: "Souligner la progression au patient",
		When: func(s *store.Snapshot) bool {
			return s.FlexTrend == store.TrendUp && s.TrendStreak >= 3
		},
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("upward trend sustained over %d snapshots", s.TrendStreak)}
		},
	},
	{
		Name: "stagnant-phase", Type: TypeReviewStagnantPhase, Priority: 5,
		Title: "Revoir la pertinence de la phase actuelle",
		When:  func(s *store.Snapshot) bool { return s.PhaseCycles >= 10 },
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("phase %q unchanged for %d snapshots", s.Phase, s.PhaseCycles)}
		},
	},
	{
		Name: "disengaged", Type: TypeReengagePatient, Priority: 4,
		Title: "Relancer l'engagement du patient",
		When: func(s *store.Snapshot) bool {
			return below(s.Activation, 0.25) && s.FlexTrend != store.TrendUp
		},
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("activation %.2f below 0.25 without an upward trend", *s.Activation)}
		},
	},
	{
		Name: "plateau", Type: TypeReviewFlatTrend, Priority: 4,
		Title: "Analyser la stagnation du parcours",
		When: func(s *store.Snapshot) bool {
			return s.FlexTrend == store.TrendFlat && s.TrendStreak >= 5
		},
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("flat trend over %d snapshots", s.TrendStreak)}
		},
	},
	{
		Name: "high-adherence", Type: TypeCelebrateProgress, Priority: 4,
		Title: "Valoriser l'assiduité du patient",
		When:  func(s *store.Snapshot) bool { return above(s.TaskAdherence, 0.8) },
		Reasons: func(s *store.Snapshot) []string {
			return []string{fmt.Sprintf("task adherence %.2f above 0.80", *s.TaskAdherence)}
		},
	},
}

// Evaluate returns every candidate whose predicate holds, ordered by
// descending priority then declaration order.
func Evaluate(s *store.Snapshot) []Candidate {
	var fired []Candidate
	for _, r := range catalogue {
		if !r.When(s) {
			continue
		}
		fired = append(fired, Candidate{
			Type:     r.Type,
			Title:    r.Title,
			Priority: r.Priority,
			Reasons:  r.Reasons(s),
		})
	}
	sort.SliceStable(fired, func(i, j int) bool {
		return fired[i].Priority > fired[j].Priority
	})
	return fired
}

// Select returns the single winning candidate, or nil when no rule fired.
func Select(s *store.Snapshot) *Candidate {
	fired := Evaluate(s)
	if len(fired) == 0 {
		return nil
	}
	return &fired[0]
}

func above(v *float64, threshold float64) bool {
	return v != nil && *v > threshold
}

func below(v *float64, threshold float64) bool {
	return v != nil && *v < threshold
}
