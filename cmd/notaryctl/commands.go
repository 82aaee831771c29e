package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wolfman30/notary-booking/internal/app/bootstrap"
	"github.com/wolfman30/notary-booking/internal/availability"
	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/blackout"
	"github.com/wolfman30/notary-booking/internal/booking"
)

type command func(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error

var commands = map[string]command{
	"dates":        cmdDates,
	"slots":        cmdSlots,
	"limit":        cmdLimit,
	"book":         cmdBook,
	"suggest":      cmdSuggest,
	"appointments": cmdAppointments,
	"cancel":       cmdCancel,
	"blackout":     cmdBlackout,
	"watch-stats":  cmdWatchStats,
}

// errNeedsDecision: the blackout overlaps appointments and no choice was given.
var errNeedsDecision = errors.New("blackout not created: affected appointments need -proceed or -cancel-reason")

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func loadDates(ctx context.Context, app *bootstrap.App) {
	if err := app.Load(ctx); err != nil {
		app.Logger.Warn("initial load incomplete, continuing with what loaded", "error", err)
	}
}

func cmdDates(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := newFlags("dates")
	month := fs.String("month", "", "YYYY-MM (default current month)")
	if err := parse(fs, args); err != nil {
		return err
	}
	anchor := time.Now().In(app.Config.Location())
	if *month != "" {
		t, err := time.ParseInLocation("2006-01", *month, app.Config.Location())
		if err != nil {
			return fmt.Errorf("%w: -month %q", errUsage, *month)
		}
		anchor = t
	}
	loadDates(ctx, app)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tDAY\tSTATUS")
	for _, d := range app.NewFlow().Month(anchor) {
		t, _ := availability.ParseDate(d.Date, app.Config.Location())
		status := "open"
		if d.Disabled {
			status = d.Reason
		}
		if d.Today {
			status += " (today)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Date, t.Weekday().String()[:3], status)
	}
	return tw.Flush()
}

func cmdSlots(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := newFlags("slots")
	date := fs.String("date", "", "YYYY-MM-DD")
	if err := parse(fs, args); err != nil {
		return err
	}
	flow := app.NewFlow()
	if *date != "" {
		loadDates(ctx, app)
		day, err := availability.ParseDate(*date, app.Config.Location())
		if err != nil {
			return fmt.Errorf("%w: -date %q", errUsage, *date)
		}
		if err := flow.SelectDate(ctx, day); err != nil {
			return errors.New(booking.Message(err))
		}
		if d := flow.LimitDecision(); !d.Allowed {
			fmt.Fprintln(out, d.Reason)
		}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tLABEL\tSTATUS")
	for _, c := range availability.Grid() {
		status := "open"
		if info := availability.TimeSlotInfo(c); info != "" {
			status = info
		} else if *date != "" && !flow.CanSelectTime() {
			status = "unavailable"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.String(), c.Display(), status)
	}
	return tw.Flush()
}

func cmdLimit(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	date := ""
	if len(args) > 0 {
		date = args[0]
	}
	snap, err := app.Guard.Check(ctx, date)
	if err != nil {
		return err
	}
	info := snap.Info
	fmt.Fprintf(out, "date:      %s\n", snap.Date)
	fmt.Fprintf(out, "limit:     %s\n", intOrDash(info.Limit))
	fmt.Fprintf(out, "used:      %d\n", info.Used)
	fmt.Fprintf(out, "remaining: %s\n", intOrDash(info.Remaining))
	fmt.Fprintf(out, "reached:   %t\n", info.HasReachedLimit)
	if info.NextAvailableTime != "" {
		fmt.Fprintf(out, "next:      %s\n", info.NextAvailableTime)
	}
	for _, b := range info.BookingsToday {
		fmt.Fprintf(out, "  booked %s %s\n", b.Time, b.Service)
	}
	if info.Message != "" {
		fmt.Fprintln(out, info.Message)
	}
	return nil
}

func cmdBook(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := newFlags("book")
	date := fs.String("date", "", "YYYY-MM-DD")
	clock := fs.String("time", "", "HH:MM")
	kind := fs.String("type", "", "service type")
	notes := fs.String("notes", "", "notes")
	custom := fs.String("custom", "", "custom service type when -type Other")
	service := fs.String("service", "", "service id")
	takeAlt := fs.Bool("take-alternative", false, "book the first suggestion if the slot is full")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *date == "" || *clock == "" {
		return fmt.Errorf("%w: -date and -time are required", errUsage)
	}
	day, err := availability.ParseDate(*date, app.Config.Location())
	if err != nil {
		return fmt.Errorf("%w: -date %q", errUsage, *date)
	}
	loadDates(ctx, app)

	flow := app.NewFlow()
	if err := flow.SelectDate(ctx, day); err != nil {
		return errors.New(booking.Message(err))
	}
	if err := flow.SelectTime(ctx, *clock); err != nil {
		return errors.New(booking.Message(err))
	}
	flow.SetDetails(*kind, *notes, *custom, backend.ID(*service))

	appt, err := flow.Submit(ctx)
	if errors.Is(err, booking.ErrCapacityConflict) {
		alts := flow.Alternatives()
		fmt.Fprintln(out, booking.Message(err))
		printAlternatives(out, alts)
		if !*takeAlt || len(alts) == 0 {
			return errors.New("slot fully booked")
		}
		if err := flow.ChooseAlternative(ctx, 0); err != nil {
			return errors.New(booking.Message(err))
		}
		appt, err = flow.Submit(ctx)
	}
	if err != nil {
		return errors.New(booking.Message(err))
	}
	fmt.Fprintf(out, "booked appointment %s on %s at %s (%s)\n", appt.ID, appt.DateKey(), appt.AppointmentTime, appt.Status)
	return nil
}

func cmdSuggest(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := newFlags("suggest")
	date := fs.String("date", "", "YYYY-MM-DD")
	days := fs.Int("days", app.Config.SuggestDaysAhead, "days to look ahead")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *date == "" {
		return fmt.Errorf("%w: -date is required", errUsage)
	}
	alts, err := app.API.SuggestAlternatives(ctx, *date, *days)
	if err != nil {
		return err
	}
	printAlternatives(out, alts)
	return nil
}

func printAlternatives(out io.Writer, alts []backend.Alternative) {
	if len(alts) == 0 {
		fmt.Fprintln(out, "no alternative slots found")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE\tTIME\tSLOTS")
	for i, a := range alts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i, a.Date, a.Time, a.AvailableSlots)
	}
	_ = tw.Flush()
}

func cmdAppointments(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	if err := app.Appointments.Load(ctx); err != nil {
		return err
	}
	printAppointments(out, app.Appointments.Appointments())
	return nil
}

func printAppointments(out io.Writer, list []backend.Appointment) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tTYPE\tSTATUS")
	for _, a := range list {
		kind := a.Type
		if a.CustomServiceType != "" {
			kind = a.CustomServiceType
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.DateKey(), backend.NormalizeClock(a.AppointmentTime), kind, a.Status)
	}
	_ = tw.Flush()
}

func cmdCancel(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := newFlags("cancel")
	id := fs.String("id", "", "appointment id")
	reason := fs.String("reason", "", "cancellation reason")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}
	if err := app.Appointments.Load(ctx); err != nil {
		return err
	}
	if err := app.Appointments.Cancel(ctx, backend.ID(*id), *reason); err != nil {
		return err
	}
	fmt.Fprintf(out, "appointment %s cancelled\n", *id)
	return nil
}

func cmdBlackout(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := newFlags("blackout")
	date := fs.String("date", "", "YYYY-MM-DD")
	reason := fs.String("reason", "", "reason shown to users")
	recurring := fs.String("recurring", "", "comma-separated weekdays, e.g. saturday,sunday")
	start := fs.String("start", "", "HH:MM range start (omit for all day)")
	end := fs.String("end", "", "HH:MM range end")
	proceed := fs.Bool("proceed", false, "create even though appointments are affected")
	cancelReason := fs.String("cancel-reason", "", "cancel affected appointments with this reason first")
	mode := fs.String("mode", backend.MessageIndividual, "notification mode: individual or group")
	ids := fs.String("ids", "", "comma-separated appointment ids to cancel (default all affected)")
	includeReason := fs.Bool("include-reason", false, "include the reason in the notification")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *proceed && *cancelReason != "" {
		return fmt.Errorf("%w: -proceed and -cancel-reason are exclusive", errUsage)
	}

	proposal := backend.BlackoutProposal{
		Date:      *date,
		Reason:    *reason,
		StartTime: *start,
		EndTime:   *end,
	}
	if *recurring != "" {
		proposal.IsRecurring = true
		proposal.RecurringDays = splitCSV(*recurring)
	}

	w := app.NewWizard()
	if err := w.Propose(ctx, proposal); err != nil {
		return err
	}
	if w.Step() == blackout.StepDone {
		fmt.Fprintf(out, "unavailable date %s created\n", describe(w.Created()))
		return nil
	}

	affected := w.Affected()
	fmt.Fprintf(out, "%d appointment(s) affected:\n", len(affected))
	printAppointments(out, affected)

	switch {
	case *proceed:
		if err := w.Proceed(ctx); err != nil {
			return err
		}
	case *cancelReason != "":
		if err := w.BeginCancelSelected(); err != nil {
			return err
		}
		if *ids == "" {
			if err := w.SelectAll(); err != nil {
				return err
			}
		} else {
			for _, id := range splitCSV(*ids) {
				if err := w.ToggleSelected(backend.ID(id)); err != nil {
					return err
				}
			}
		}
		if err := w.CancelSelected(ctx, *cancelReason, *mode, *includeReason); err != nil {
			return err
		}
		fmt.Fprintf(out, "cancelled %d appointment(s)\n", len(w.Cancelled()))
	default:
		return errNeedsDecision
	}
	fmt.Fprintf(out, "unavailable date %s created\n", describe(w.Created()))
	return nil
}

func describe(d *backend.UnavailableDate) string {
	if d == nil {
		return ""
	}
	if d.DateKey() != "" {
		return d.DateKey()
	}
	return strings.Join(d.RecurringDays, ",")
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func cmdWatchStats(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	poller := app.NewPoller()
	srv := &http.Server{
		Addr:         app.Config.StatusAddr,
		Handler:      app.StatusHandler(poller),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			app.Logger.Error("dashboard poller stopped", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	}

	app.Logger.Info("shutting down status server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	fmt.Fprintln(out, "status server stopped")
	return nil
}
