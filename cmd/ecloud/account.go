package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/fruitsalade/ecloud/internal/account"
	"github.com/fruitsalade/ecloud/pkg/models"
)

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	name := fs.String("name", "", "Set the display name")
	email := fs.String("email", "", "Change the sign-in email")
	fs.Parse(args)

	settings := account.New(a.session, a.client, a.bus)
	var (
		user *models.User
		err  error
	)
	switch {
	case *name != "":
		user, err = settings.Rename(ctx, *name)
	case *email != "":
		user, err = settings.ChangeEmail(ctx, promptPassword("Current password: "), *email)
	default:
		user, err = settings.Load(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("ID:      %s\n", user.ID)
	fmt.Printf("Email:   %s\n", user.Email)
	fmt.Printf("Name:    %s\n", user.Name)
	if !user.CreatedAt.IsZero() {
		fmt.Printf("Joined:  %s\n", user.CreatedAt.Format(time.DateOnly))
	}
	return nil
}

func cmdPasswd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	fs.Parse(args)

	settings := account.New(a.session, a.client, a.bus)
	current := promptPassword("Current password: ")
	next := promptPassword("New password: ")
	confirm := promptPassword("Confirm new password: ")
	if err := settings.ChangePassword(ctx, current, next, confirm); err != nil {
		return err
	}
	fmt.Println("Password changed.")
	return nil
}
