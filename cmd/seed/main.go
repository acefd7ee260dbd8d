package main

import (
	"context"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/accompli/iep-api/internal/models"
	"github.com/accompli/iep-api/internal/repository"
	"github.com/accompli/iep-api/pkg/config"
	"github.com/accompli/iep-api/pkg/database"
)

// Seeds a development database with a demo caseload: one teacher account,
// two students, an active IEP with goals and progress history, and a
// behavior event linked to a behavioral goal.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	students := repository.NewStudentRepository(db)
	ieps := repository.NewIEPRepository(db)
	goals := repository.NewGoalRepository(db)
	behavior := repository.NewBehaviorRepository(db)

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	teacher := &models.User{
		OrganizationID: "org-demo",
		Email:          "teacher@example.com",
		PasswordHash:   string(hash),
		FullName:       "Demo Teacher",
		Role:           models.RoleTeacher,
		Active:         true,
	}
	if err := users.Create(ctx, teacher); err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	emma := &models.Student{
		OrganizationID:     "org-demo",
		FirstName:          "Emma",
		LastName:           "Rodriguez",
		GradeLevel:         "3",
		BirthDate:          time.Date(2016, 3, 12, 0, 0, 0, 0, time.UTC),
		DisabilityCategory: models.DisabilitySpecificLearningDisability,
		Active:             true,
	}
	marcus := &models.Student{
		OrganizationID:     "org-demo",
		FirstName:          "Marcus",
		LastName:           "Webb",
		GradeLevel:         "11",
		BirthDate:          time.Date(2008, 7, 2, 0, 0, 0, 0, time.UTC),
		DisabilityCategory: models.DisabilityOtherHealthImpairment,
		Active:             true,
	}
	for _, s := range []*models.Student{emma, marcus} {
		if err := students.Create(ctx, s); err != nil {
			log.Fatalf("failed to create student: %v", err)
		}
	}

	effective := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	emmaIEP := &models.IEP{
		StudentID:               emma.ID,
		IEPYear:                 "2025-2026",
		EffectiveDate:           effective,
		AnnualReviewDate:        effective.AddDate(1, 0, 0),
		TriennialEvaluationDate: time.Date(2028, 4, 15, 0, 0, 0, 0, time.UTC),
		DisabilityCategory:      models.DisabilitySpecificLearningDisability,
		PresentLevels: "Reads at beginning 2nd grade level (DRA 16). Oral reading fluency 45 wpm at 85% accuracy. " +
			"Strong verbal communication and listening comprehension. Needs explicit decoding instruction and support " +
			"with written expression organization.",
		Accommodations: []string{
			"Extended time for assignments and assessments",
			"Read aloud for all areas except reading comprehension",
			"Graphic organizers for writing tasks",
		},
		RelatedServices: models.RelatedServiceList{{
			ServiceType:     models.ServiceSpeechLanguage,
			ProviderType:    "SLP",
			SessionsPerWeek: 1,
			MinutesPer:      30,
			Location:        "resource-room",
			StartDate:       effective,
			EndDate:         effective.AddDate(1, 0, 0),
		}},
		CreatedBy: teacher.ID,
	}
	if err := ieps.Create(ctx, emmaIEP); err != nil {
		log.Fatalf("failed to create iep: %v", err)
	}
	if err := ieps.Activate(ctx, emmaIEP.ID, emma.ID); err != nil {
		log.Fatalf("failed to activate iep: %v", err)
	}

	marcusIEP := &models.IEP{
		StudentID:               marcus.ID,
		IEPYear:                 "2025-2026",
		EffectiveDate:           effective,
		AnnualReviewDate:        effective.AddDate(1, 0, 0),
		TriennialEvaluationDate: time.Date(2027, 10, 1, 0, 0, 0, 0, time.UTC),
		DisabilityCategory:      models.DisabilityOtherHealthImpairment,
		PresentLevels: "Strong aptitude for hands-on mechanical work; needs support reading technical manuals " +
			"and with multi-step calculations.",
		Accommodations: []string{"Extended time", "Calculator for multi-step problems"},
		TransitionPlan: &models.TransitionPlan{
			PostsecondaryEducation:  "Enroll in a 2-year automotive technology program within one year of graduation.",
			PostsecondaryEmployment: "Competitive employment in automotive repair, at least 20 hours per week.",
			IndependentLiving:       "Live independently with minimal support within two years of graduation.",
			TransferOfRightsNotice:  true,
		},
		CreatedBy: teacher.ID,
	}
	if err := ieps.Create(ctx, marcusIEP); err != nil {
		log.Fatalf("failed to create iep: %v", err)
	}
	if err := ieps.Activate(ctx, marcusIEP.ID, marcus.ID); err != nil {
		log.Fatalf("failed to activate iep: %v", err)
	}

	reading := &models.Goal{
		IEPID: emmaIEP.ID,
		Area:  models.AreaReading,
		Statement: "Given a 2nd-3rd grade level passage, Emma will read aloud with 95% accuracy and answer " +
			"4 of 5 comprehension questions correctly, measured by monthly curriculum-based assessments.",
		Baseline:           "Reads 2nd grade passages with 85% accuracy, answers 2 of 5 comprehension questions",
		TargetCriteria:     "95% word accuracy and 4/5 comprehension questions",
		Target:             95,
		HigherIsBetter:     true,
		EvaluationMethod:   "CBM oral reading fluency probes",
		EvaluationSchedule: "Monthly",
		MeasurementType:    models.MeasureAccuracy,
	}
	behaviorGoal := &models.Goal{
		IEPID: emmaIEP.ID,
		Area:  models.AreaBehavioral,
		Statement: "During transitions to non-preferred activities, Emma will begin the new task within 2 minutes " +
			"without disruptive behavior in 4 of 5 observed transitions.",
		Baseline:           "Begins non-preferred tasks within 2 minutes in 1 of 5 transitions",
		TargetCriteria:     "4 of 5 transitions without disruption",
		Target:             80,
		HigherIsBetter:     true,
		EvaluationMethod:   "Direct observation tally",
		EvaluationSchedule: "Weekly",
		MeasurementType:    models.MeasureFrequency,
	}
	for _, g := range []*models.Goal{reading, behaviorGoal} {
		if err := goals.Create(ctx, g); err != nil {
			log.Fatalf("failed to create goal: %v", err)
		}
	}

	correct := []int{34, 36, 38}
	for week, c := range correct {
		c := c
		total := 40
		point := &models.ProgressDataPoint{
			GoalID:          reading.ID,
			CollectionDate:  effective.AddDate(0, 0, 7*(week+1)),
			MeasurementType: models.MeasureAccuracy,
			Correct:         &c,
			Total:           &total,
			PromptLevel:     models.PromptIndependent,
			MasteryMet:      c >= 38,
			Note:            "Small group CBM probe",
			CreatedBy:       teacher.ID,
		}
		current, err := goals.FindByID(ctx, reading.ID)
		if err != nil {
			log.Fatalf("failed to reload goal: %v", err)
		}
		point.Value = float64(c) / float64(total) * 100
		current.CurrentProgress = int(point.Value)
		if err := goals.AppendPoint(ctx, current, point, current.Version); err != nil {
			log.Fatalf("failed to append progress point: %v", err)
		}
	}

	rating := 4
	event := &models.BehaviorEvent{
		StudentID:       emma.ID,
		GoalID:          &behaviorGoal.ID,
		OccurredAt:      effective.AddDate(0, 0, 10),
		Antecedent:      "Transition from preferred activity (art) to non-preferred activity (math worksheet)",
		Behavior:        "Threw pencil, pushed materials off desk, verbal refusal",
		Consequence:     "Brief break provided, redirected to task with modified assignment",
		Severity:        models.SeverityMedium,
		DurationSeconds: 180,
		Location:        "General education classroom",
		StaffPresent:    []string{"General Ed Teacher", "Classroom Aide"},
		EnvironmentalFactors: []string{
			"Noisy classroom", "Unexpected schedule change",
		},
		InterventionsUsed:   []string{"Choice of seating", "Modified assignment length", "Visual schedule review"},
		EffectivenessRating: &rating,
		FollowUpNeeded:      true,
		CreatedBy:           teacher.ID,
	}
	if err := behavior.Create(ctx, event); err != nil {
		log.Fatalf("failed to create behavior event: %v", err)
	}

	log.Printf("seeded demo data: login teacher@example.com / changeme123")
}
