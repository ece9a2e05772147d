package main

import (
	"fmt"
	"net/http"
	"testing"

	"bakery-backend/internal/auth"
	"bakery-backend/internal/config"
	"bakery-backend/internal/events"
	"bakery-backend/internal/models"
	"bakery-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newServerApp(t *testing.T) (*fiber.App, models.Ingredient) {
	t.Helper()
	db := testutil.NewTestDB(t)
	flour := testutil.CreateIngredient(t, db, "Spelt Flour", "lb", "100", "20")

	cfg := &config.Config{JWTSecret: testSecret, Payment: config.PaymentConfig{Currency: "usd"}}
	app := testutil.NewApp()
	routes(app, cfg, db, events.NewBus(zap.NewNop()), testutil.NewFakeProcessor(), zap.NewNop())
	return app, flour
}

func tokenFor(t *testing.T, id uint, role models.UserRole) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, &models.User{ID: id, Name: string(role), Email: string(role) + "@bakery.test", Role: role})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func TestRoutes_ingredientEditsNeedAdmin(t *testing.T) {
	app, flour := newServerApp(t)
	staff := tokenFor(t, 2, models.RoleStaff)
	admin := tokenFor(t, 1, models.RoleAdmin)
	path := fmt.Sprintf("/api/admin/ingredients/%d", flour.ID)

	body := map[string]any{"on_hand": "500"}
	if status, raw := testutil.Do(t, app, http.MethodPut, path, body, staff); status != http.StatusForbidden {
		t.Errorf("staff PUT = %d body=%s, want 403", status, raw)
	}
	if status, raw := testutil.Do(t, app, http.MethodPut, path, body, admin); status != http.StatusOK {
		t.Errorf("admin PUT = %d body=%s, want 200", status, raw)
	}

	// recorded movements stay open to staff
	adjust := map[string]any{"type": "waste", "quantity": "2", "reason": "dropped tray"}
	if status, raw := testutil.Do(t, app, http.MethodPost, path+"/adjust", adjust, staff); status != http.StatusOK {
		t.Errorf("staff adjust = %d body=%s, want 200", status, raw)
	}
}

func TestRoutes_adminRequiresToken(t *testing.T) {
	app, _ := newServerApp(t)
	if status, _ := testutil.Do(t, app, http.MethodGet, "/api/admin/ingredients", nil, ""); status != http.StatusUnauthorized {
		t.Errorf("anonymous GET = %d, want 401", status)
	}
	if status, _ := testutil.Do(t, app, http.MethodGet, "/api/products", nil, ""); status != http.StatusOK {
		t.Errorf("public products = %d, want 200", status)
	}
}
