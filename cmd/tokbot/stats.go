package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwygoda/tokbot/internal/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats [telegram-id]",
	Short: "Show usage statistics for the service or one user",
	Args:  cobra.MaximumNArgs(1),
	RunE:  statsRun,
}

func statsRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 0 {
		s, err := st.ServiceStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Users\t%d\n", s.TotalUsers)
		fmt.Fprintf(w, "Requests\t%d\n", s.TotalRequests)
		fmt.Fprintf(w, "Successful\t%d\n", s.SuccessfulRequests)
		fmt.Fprintf(w, "Success rate\t%.1f%%\n", s.SuccessRate)
		return nil
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram id %q", args[0])
	}
	s, err := st.UserStats(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("no user with telegram id %d", id)
	}
	if err != nil {
		return err
	}

	name := s.Username
	if name == "" {
		name = s.FirstName
	}
	fmt.Fprintf(w, "User\t%d %s\n", s.TelegramID, name)
	fmt.Fprintf(w, "Requests\t%d\n", s.TotalRequests)
	fmt.Fprintf(w, "Successful\t%d\n", s.SuccessfulRequests)
	fmt.Fprintf(w, "Success rate\t%.1f%%\n", s.SuccessRate)
	fmt.Fprintf(w, "Member since\t%s\n", s.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(w, "Last active\t%s\n", s.LastActivity.Format("2006-01-02 15:04"))
	return nil
}
