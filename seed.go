package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"canteen/server/internal/config"
	"canteen/server/internal/models"
	"canteen/server/internal/services"
)

func runSeedOwner(c *cli.Context, cfg *config.Config) error {
	ctx := c.Context
	app, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	username := c.String("username")
	if username == app.owners.Primary() {
		created, err := app.owners.EnsurePrimary(ctx, c.String("password"))
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"username": username, "created": created}).Info("primary owner checked")
		return nil
	}

	if _, err := app.owners.EnsurePrimary(ctx, cfg.PrimaryOwnerPassword); err != nil {
		return errors.Wrap(err, "primary owner must exist before adding owners")
	}
	if err := app.owners.Add(ctx, app.owners.Primary(), username, c.String("name"), c.String("password")); err != nil {
		return err
	}
	log.WithField("username", username).Info("owner created")
	return nil
}

// demoCustomers are placed in order; each one's cart exercises a different
// part of the timing table.
var demoCustomers = []struct {
	name    string
	payment string
	lines   []models.CartLine
}{
	{"Budi", "cash", []models.CartLine{{Name: "Bakso", UnitPrice: 15000, Quantity: 1}, {Name: "Es Teh", UnitPrice: 3000, Quantity: 2}}},
	{"Sari", "e_wallet", []models.CartLine{{Name: "Seblak", UnitPrice: 12000, Quantity: 1}}},
	{"Andi", "bank_transfer", []models.CartLine{{Name: "Mie Ayam", UnitPrice: 13000, Quantity: 2}, {Name: "Kopi", UnitPrice: 4000, Quantity: 1}}},
	{"Dewi", "cash", []models.CartLine{{Name: "Cireng", UnitPrice: 5000, Quantity: 3}}},
	{"Rina", "e_wallet", []models.CartLine{{Name: "Soto", UnitPrice: 12000, Quantity: 1}, {Name: "Le minerale", UnitPrice: 4000, Quantity: 1}}},
}

func runSeedDemo(c *cli.Context, cfg *config.Config) error {
	ctx := c.Context
	app, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	n := c.Int("count")
	if n <= 0 {
		return errors.Errorf("count must be positive, got %d", n)
	}
	for i := 0; i < n; i++ {
		if err := submitDemoOrder(ctx, app.service, i); err != nil {
			return err
		}
	}
	return nil
}

func submitDemoOrder(ctx context.Context, svc *services.OrderService, i int) error {
	d := demoCustomers[i%len(demoCustomers)]
	name := d.name
	if i >= len(demoCustomers) {
		name = fmt.Sprintf("%s %d", d.name, i/len(demoCustomers)+1)
	}
	o, err := svc.Submit(ctx, services.SubmitRequest{
		Items:         d.lines,
		CustomerName:  name,
		PaymentMethod: d.payment,
		Note:          "demo",
	})
	if err != nil {
		return errors.Wrapf(err, "submit demo order for %s", name)
	}
	log.WithFields(log.Fields{
		"order_id":    o.ID,
		"customer":    o.CustomerName,
		"eta_minutes": o.ETAMinutes,
	}).Info("demo order submitted")
	return nil
}
