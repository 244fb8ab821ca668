// Command mktoken mints a development access token for exercising the API
// locally. Production tokens come from the institution's identity provider.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ecoleplanner/timetable-api/internal/models"
	"github.com/ecoleplanner/timetable-api/internal/service"
	"github.com/ecoleplanner/timetable-api/pkg/config"
)

func main() {
	userID := flag.String("user", "dev-user", "subject user id")
	role := flag.String("role", string(models.RoleAdmin), "role claim (ADMIN, DIRECTOR or TEACHER)")
	flag.Parse()

	switch models.UserRole(*role) {
	case models.RoleAdmin, models.RoleDirector, models.RoleTeacher:
	default:
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	token, err := service.NewAuthService(cfg.JWT).IssueToken(*userID, models.UserRole(*role))
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
}
