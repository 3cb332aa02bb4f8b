package appointment

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
)

func TestSortForDisplay(t *testing.T) {
	mk := func(s Status, date, hhmm string) *View {
		return &View{Appointment: &Appointment{ID: uuid.New(), Status: s, Date: date, Time: hhmm}}
	}
	views := []*View{
		mk(StatusDeclined, "2026-11-05", "09:00"),
		mk(StatusCompleted, "2026-11-01", "09:00"),
		mk(StatusScheduled, "2026-11-02", "09:00"),
		mk(StatusCancelled, "2026-11-09", "09:00"),
		mk(StatusPending, "2026-11-01", "10:00"),
		mk(StatusScheduled, "2026-11-03", "09:00"),
		mk(StatusRescheduled, "2026-11-02", "11:00"),
		mk(StatusPending, "2026-11-04", "09:00"),
		mk(StatusScheduled, "2026-11-03", "14:00"),
	}
	SortForDisplay(views)

	want := []struct {
		status Status
		date   string
		time   string
	}{
		{StatusPending, "2026-11-04", "09:00"},
		{StatusPending, "2026-11-01", "10:00"},
		{StatusScheduled, "2026-11-03", "14:00"},
		{StatusScheduled, "2026-11-03", "09:00"},
		{StatusScheduled, "2026-11-02", "09:00"},
		{StatusRescheduled, "2026-11-02", "11:00"},
		{StatusCompleted, "2026-11-01", "09:00"},
		{StatusCancelled, "2026-11-09", "09:00"},
		{StatusDeclined, "2026-11-05", "09:00"},
	}
	for i, w := range want {
		v := views[i]
		if v.Status != w.status || v.Date != w.date || v.Time != w.time {
			t.Errorf("position %d: got %s %s %s, want %s %s %s", i, v.Status, v.Date, v.Time, w.status, w.date, w.time)
		}
	}
}

func TestSortForDisplay_TiesBreakOnID(t *testing.T) {
	a := &View{Appointment: &Appointment{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Status: StatusPending, Date: visitDate, Time: "09:00"}}
	b := &View{Appointment: &Appointment{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Status: StatusPending, Date: visitDate, Time: "09:00"}}
	views := []*View{a, b}
	SortForDisplay(views)
	if views[0] != b {
		t.Error("expected lower id first on a full tie")
	}
}

func TestList_Scoping(t *testing.T) {
	e := newEnv(t)
	name := "Asha Rao"
	e.store.contacts[e.patient.ID] = &PatientContact{FullName: &name}

	mine := e.seed(t, StatusPending, visitDate, "09:00")
	other := &Appointment{PatientID: uuid.New(), DoctorID: uuid.New(), Date: visitDate, Time: "09:00", Status: StatusPending, Symptoms: "rash"}
	if err := (memAppts{e.store}).Create(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	items, total, err := e.svc.List(context.Background(), e.patient, ListFilter{}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].ID != mine.ID {
		t.Fatalf("patient should see only own appointments, got %d", total)
	}
	if items[0].Patient != nil {
		t.Error("patient view should not carry contact details")
	}

	items, total, err = e.svc.List(context.Background(), e.doctor, ListFilter{DoctorID: other.DoctorID}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].ID != mine.ID {
		t.Fatalf("doctor should see only own appointments, got %d", total)
	}
	if items[0].Patient == nil || *items[0].Patient.FullName != name {
		t.Errorf("doctor view should include patient contact")
	}
	if items[0].Symptoms == "" {
		t.Error("doctor view should include symptoms")
	}

	_, total, err = e.svc.List(context.Background(), e.admin, ListFilter{}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("admin should see all appointments, got %d", total)
	}

	_, total, err = e.svc.List(context.Background(), e.admin, ListFilter{DoctorID: other.DoctorID}, 10, 0)
	if err != nil || total != 1 {
		t.Errorf("admin doctor filter: %d %v", total, err)
	}

	_, _, err = e.svc.List(context.Background(), e.admin, ListFilter{Status: "ARCHIVED"}, 10, 0)
	wantKind(t, err, apperr.KindValidation, "")
}

func TestGet_Visibility(t *testing.T) {
	e := newEnv(t)
	a := e.seed(t, StatusScheduled, visitDate, "09:00")

	for _, actor := range []auth.Actor{e.patient, e.doctor, e.admin} {
		if _, err := e.svc.Get(context.Background(), actor, a.ID); err != nil {
			t.Errorf("%s: unexpected error %v", actor.Role, err)
		}
	}
	for _, actor := range []auth.Actor{
		{ID: uuid.New(), Role: auth.RolePatient},
		{ID: uuid.New(), Role: auth.RoleDoctor},
	} {
		_, err := e.svc.Get(context.Background(), actor, a.ID)
		wantKind(t, err, apperr.KindNotFound, "")
	}
}

func TestGetPrescriptionAndPayment(t *testing.T) {
	e := newEnv(t)
	a := e.seed(t, StatusScheduled, visitDate, "09:00")

	_, err := e.svc.GetPrescription(context.Background(), e.patient, a.ID)
	wantKind(t, err, apperr.KindNotFound, "")

	if _, err := e.svc.Complete(context.Background(), e.doctor, completeInput(a.ID)); err != nil {
		t.Fatal(err)
	}

	rx, err := e.svc.GetPrescription(context.Background(), e.patient, a.ID)
	if err != nil || rx.Diagnosis != "Acute pharyngitis" {
		t.Errorf("unexpected prescription: %+v %v", rx, err)
	}
	pay, err := e.svc.GetPayment(context.Background(), e.doctor, a.ID)
	if err != nil || pay.AppointmentID != a.ID {
		t.Errorf("unexpected payment: %+v %v", pay, err)
	}

	stranger := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	_, err = e.svc.GetPayment(context.Background(), stranger, a.ID)
	wantKind(t, err, apperr.KindNotFound, "")
}
