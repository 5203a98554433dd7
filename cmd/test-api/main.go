// Package main is a smoke-test utility that verifies the API is reachable and
// accepts locally minted tokens. It signs an HS256 token with MKT_JWT_SECRET for
// the given email, then reads the session and onboarding status through the same
// client the dashboard uses, printing both. Useful for quick post-deployment checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/apiclient"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/auth"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	email := flag.String("email", "dev@example.com", "email of the identity to sign in as")
	audience := flag.String("audience", auth.DefaultAudience, "token audience")
	flag.Parse()

	if err := auth.ValidateJWTSecret(false); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	identity := auth.Identity{
		ID:    uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(*email))).String(),
		Email: *email,
		Role:  "authenticated",
	}
	token, err := auth.GenerateJWT(identity, *audience, 5*time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client := apiclient.New(*baseURL, apiclient.WithToken(token))

	info, err := client.CurrentSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Session: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Identity: %s <%s>\n", info.Identity.ID, info.Identity.Email)
	if info.Organization != nil {
		fmt.Printf("Organization: %s (%s) role=%s\n", info.Organization.Name, info.Organization.Slug, info.Role)
	} else {
		fmt.Println("Organization: none")
	}

	status, err := client.GetOnboardingStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Onboarding status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Onboarded: %v\n", status.Onboarded)
}
