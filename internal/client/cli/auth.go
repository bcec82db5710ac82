package cli

import (
	"context"
	"fmt"
)

// login stores a token pair obtained from the server out of band, e.g. with
// "motium-server issue-token".
func (app *App) login(ctx context.Context, access, refresh string) error {
	if err := app.auth.SignIn(ctx, access, refresh); err != nil {
		return err
	}
	fmt.Fprintln(app.out, "Login successful")
	return nil
}

func (app *App) logout(ctx context.Context) error {
	if err := app.auth.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(app.out, "Logged out")
	return nil
}
