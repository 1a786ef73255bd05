package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/localstore"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/validation"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture and manage encounters on this device",
	Long:  "Add, update, delete and list encounters in the local store. Changes are queued and uploaded by the next sync.",
}

// encounterFlags binds one flag per editable encounter field.
type encounterFlags struct {
	patient, ageGroup, facility, facilityType, inOut      string
	date, apptType, referral, referralOther               string
	clinicalArea, clinicalAreaOther, attendance, disposal string
	outcome                                               string
	duration                                              int
	activities, devices                                   []string
}

var (
	addFlags    encounterFlags
	updateFlags encounterFlags

	listPending  bool
	listFacility string
	listDate     string
	listPatient  string
)

var recordAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new encounter",
	Args:  cobra.NoArgs,
	RunE:  runRecordAdd,
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of an encounter by local or server id",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordUpdate,
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an encounter by local or server id",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordDelete,
}

var recordListCmd = &cobra.Command{
	Use:   "list",
	Short: "List encounters stored on this device",
	Args:  cobra.NoArgs,
	RunE:  runRecordList,
}

func init() {
	addFlags.bind(recordAddCmd.Flags())
	updateFlags.bind(recordUpdateCmd.Flags())

	recordListCmd.Flags().BoolVar(&listPending, "pending", false, "Only records not yet synced")
	recordListCmd.Flags().StringVar(&listFacility, "facility", "", "Only records at this facility")
	recordListCmd.Flags().StringVar(&listDate, "date", "", "Only records on this date (YYYY-MM-DD)")
	recordListCmd.Flags().StringVar(&listPatient, "patient", "", "Only records for this patient identifier")

	recordCmd.AddCommand(recordAddCmd)
	recordCmd.AddCommand(recordUpdateCmd)
	recordCmd.AddCommand(recordDeleteCmd)
	recordCmd.AddCommand(recordListCmd)
}

func (f *encounterFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.patient, "patient", "", "Patient identifier")
	fs.StringVar(&f.ageGroup, "age-group", "", "Age group")
	fs.StringVar(&f.facility, "facility", "", "Facility name")
	fs.StringVar(&f.facilityType, "facility-type", "", "Facility type")
	fs.StringVar(&f.inOut, "inpatient-outpatient", "", "Inpatient or outpatient")
	fs.StringVar(&f.date, "date", "", "Appointment date (YYYY-MM-DD)")
	fs.StringVar(&f.apptType, "type", "", "Appointment type: new, repeat")
	fs.StringVar(&f.referral, "referral", "", "Referral source")
	fs.StringVar(&f.referralOther, "referral-other", "", "Referral source when 'Other'")
	fs.StringVar(&f.clinicalArea, "clinical-area", "", "Clinical area")
	fs.StringVar(&f.clinicalAreaOther, "clinical-area-other", "", "Clinical area when 'Other'")
	fs.StringVar(&f.attendance, "attendance", "", "Attendance outcome")
	fs.StringVar(&f.disposal, "disposal", "", "Disposal")
	fs.StringVar(&f.outcome, "outcome", "", "Clinical outcome notes")
	fs.IntVar(&f.duration, "duration", 0, "Session duration in minutes")
	fs.StringSliceVar(&f.activities, "activity", nil, "Activity performed (repeatable)")
	fs.StringSliceVar(&f.devices, "device", nil, "Issued assistive device as NAME or NAME:SERIAL (repeatable)")
}

func (f *encounterFlags) encounter(owner string) types.Encounter {
	e := types.Encounter{
		Owner:               owner,
		PatientIdentifier:   f.patient,
		AgeGroup:            f.ageGroup,
		Facility:            f.facility,
		FacilityType:        f.facilityType,
		InpatientOutpatient: f.inOut,
		AppointmentDate:     f.date,
		AppointmentType:     f.apptType,
		ReferralSource:      f.referral,
		ReferralSourceOther: f.referralOther,
		ClinicalArea:        f.clinicalArea,
		ClinicalAreaOther:   f.clinicalAreaOther,
		Attendance:          f.attendance,
		Disposal:            f.disposal,
		ClinicalOutcome:     f.outcome,
		Activities:          f.activities,
		AssistiveDevices:    parseDevices(f.devices),
	}
	if f.duration > 0 {
		d := f.duration
		e.SessionDuration = &d
	}
	return e
}

// patch includes only the flags the user set on the command line.
func (f *encounterFlags) patch(fs *pflag.FlagSet) types.EncounterPatch {
	var p types.EncounterPatch
	str := func(name string, v string) *string {
		if !fs.Changed(name) {
			return nil
		}
		return &v
	}
	p.PatientIdentifier = str("patient", f.patient)
	p.AgeGroup = str("age-group", f.ageGroup)
	p.Facility = str("facility", f.facility)
	p.FacilityType = str("facility-type", f.facilityType)
	p.InpatientOutpatient = str("inpatient-outpatient", f.inOut)
	p.AppointmentDate = str("date", f.date)
	p.AppointmentType = str("type", f.apptType)
	p.ReferralSource = str("referral", f.referral)
	p.ReferralSourceOther = str("referral-other", f.referralOther)
	p.ClinicalArea = str("clinical-area", f.clinicalArea)
	p.ClinicalAreaOther = str("clinical-area-other", f.clinicalAreaOther)
	p.Attendance = str("attendance", f.attendance)
	p.Disposal = str("disposal", f.disposal)
	p.ClinicalOutcome = str("outcome", f.outcome)

	if fs.Changed("duration") {
		if f.duration > 0 {
			d := f.duration
			p.SessionDuration = &d
		} else {
			p.ClearSessionDuration = true
		}
	}
	if fs.Changed("activity") {
		p.Activities = append([]string{}, f.activities...)
	}
	if fs.Changed("device") {
		p.AssistiveDevices = parseDevices(f.devices)
		if p.AssistiveDevices == nil {
			p.AssistiveDevices = map[string]types.DeviceIssue{}
		}
	}
	return p
}

func parseDevices(specs []string) map[string]types.DeviceIssue {
	if len(specs) == 0 {
		return nil
	}
	out := make(map[string]types.DeviceIssue, len(specs))
	for _, s := range specs {
		name, serial, _ := strings.Cut(s, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = types.DeviceIssue{Issued: true, SerialNumber: strings.TrimSpace(serial)}
	}
	return out
}

func validationError(errs []validation.ValidationError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Field + ": " + e.Message
	}
	return fmt.Errorf("invalid encounter:\n  %s", strings.Join(msgs, "\n  "))
}

func runRecordAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.Client.Owner == "" {
		return errors.New("HSTATS_OWNER is required to record encounters")
	}

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	rec := addFlags.encounter(cfg.Client.Owner)
	if errs := validation.ValidateEncounter(rec); len(errs) > 0 {
		return validationError(errs)
	}

	saved, err := app.local.SaveRecord(ctx, rec)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), saved)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s (patient %s, %s at %s); queued for sync\n",
		saved.LocalID, saved.PatientIdentifier, saved.AppointmentDate, saved.Facility)
	return nil
}

func runRecordUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	patch := updateFlags.patch(cmd.Flags())
	if patch.IsEmpty() {
		return errors.New("nothing to update: pass at least one field flag")
	}

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	current, ok := app.local.GetRecord(id)
	if !ok {
		return fmt.Errorf("record %q not found", id)
	}
	preview := current.Clone()
	patch.Apply(&preview)
	if errs := validation.ValidateEncounter(preview); len(errs) > 0 {
		return validationError(errs)
	}

	updated, err := app.local.UpdateRecord(ctx, id, patch)
	var pe *localstore.PersistError
	switch {
	case errors.As(err, &pe):
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	case err != nil:
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), updated)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s; queued for sync\n", updated.LocalID)
	return nil
}

func runRecordDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	app.probe(ctx)
	if !app.sync.DeleteRecord(ctx, id) {
		return fmt.Errorf("record %q not found", id)
	}

	pending := len(app.local.PendingDeletes())
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":              id,
			"deleted":         true,
			"pending_deletes": pending,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	if pending > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d remote deletion(s) will be sent on the next sync\n", pending)
	}
	return nil
}

func runRecordList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	filter := types.RecordFilter{
		Facility:          listFacility,
		AppointmentDate:   listDate,
		PatientIdentifier: listPatient,
	}
	if listPending {
		unsynced := false
		filter.Synced = &unsynced
	}
	records := app.local.FindRecords(filter)

	if jsonOutput {
		if records == nil {
			records = []types.Encounter{}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"records": records,
			"total":   len(records),
		})
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No records found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "LOCAL ID\tSERVER ID\tDATE\tPATIENT\tFACILITY\tATTENDANCE\tSYNCED")
	for _, r := range records {
		serverID := ""
		if r.HasServerID() {
			serverID = r.ID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			r.LocalID,
			orDash(serverID),
			r.AppointmentDate,
			r.PatientIdentifier,
			r.Facility,
			orDash(r.Attendance),
			r.Synced,
		)
	}
	w.Flush()

	return nil
}
