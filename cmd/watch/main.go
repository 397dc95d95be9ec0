// Command watch is a terminal dashboard: it logs in, loads a view and prints it
// again every time the event stream changes it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rollcall/internal/config"
	"rollcall/internal/dashboard"
	"rollcall/internal/model"
)

func main() {
	cfg := config.Load()

	base := flag.String("api", "http://localhost:"+cfg.HTTPPort, "API base URL")
	email := flag.String("email", os.Getenv("ROLLCALL_EMAIL"), "login email")
	password := flag.String("password", os.Getenv("ROLLCALL_PASSWORD"), "login password")
	classID := flag.String("class", "", "class id (teachers)")
	date := flag.String("date", "", "day to follow, YYYY-MM-DD (teachers)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *base, *email, *password, *classID, *date); err != nil && ctx.Err() == nil {
		log.Fatalf("watch: %v", err)
	}
}

func run(ctx context.Context, base, email, password, classID, date string) error {
	client := dashboard.NewClient(base)
	login, err := client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	var view dashboard.View
	var roster []model.StudentSummary
	switch login.Role {
	case model.RoleStudent:
		view = dashboard.StudentView(login.User.ID)
	default:
		day, err := model.ParseDate(date)
		if err != nil || classID == "" {
			return fmt.Errorf("teachers must pass -class and a valid -date")
		}
		view = dashboard.ClassView(classID, day)
		if roster, err = client.ClassStudents(ctx, classID); err != nil {
			return err
		}
	}

	events, err := client.Events(ctx)
	if err != nil {
		return err
	}
	board := dashboard.New(view, client, func(s dashboard.State) { render(login.User, s, roster) })

	errc := make(chan error, 1)
	go func() { errc <- board.Run(ctx, events) }()
	if err := board.Load(ctx); err != nil {
		return err
	}
	log.Printf("watching as %s (%s), ctrl-c to stop", login.User.Name, login.Role)
	return <-errc
}

func render(u model.User, s dashboard.State, roster []model.StudentSummary) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n== %s [%s] ==\n", u.Name, s.Phase)
	st := s.Stats
	fmt.Fprintf(&b, "present %d  absent %d  total %d  classes %d  attendance %.1f%%\n",
		st.Present, st.Absent, st.Total, st.UniqueClasses, st.Percentage)

	if s.View.IsStudent() {
		for _, m := range st.Monthly {
			fmt.Fprintf(&b, "  %s %5.1f%% (%d/%d)\n", m.Month, m.Percentage, m.Present, m.Total)
		}
		for _, r := range s.Records {
			fmt.Fprintf(&b, "  %s  %-20s %s\n", r.Date, r.ClassName, r.Status)
		}
	} else {
		for _, row := range dashboard.Roster(roster, s.Records) {
			fmt.Fprintf(&b, "  %-10s %-24s %s\n", row.Student.StudentID, row.Student.Name, row.Status)
		}
	}
	fmt.Print(b.String())
}
