package main

import (
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/table"
	"github.com/urfave/cli"
)

// invoiceView mirrors invoices.Invoice's stable JSON wire form
// (invoices/json.go's wireInvoice), decoded independently here so this CLI
// has no compile-time dependency on the daemon's internal packages — it
// only ever speaks the REST adapter's wire format.
type invoiceView struct {
	ID                    string  `json:"id"`
	Address               string  `json:"address"`
	AmountRequested       uint64  `json:"amount_requested"`
	AmountPaid            uint64  `json:"amount_paid"`
	ConfirmationsRequired uint64  `json:"confirmations_required"`
	Confirmations         *uint64 `json:"confirmations"`
	CurrentHeight         uint64  `json:"current_height"`
	ExpirationHeight      uint64  `json:"expiration_height"`
	CreationHeight        uint64  `json:"creation_height"`
	Description           string  `json:"description"`
	Callback              string  `json:"callback,omitempty"`
	IsPaid                bool    `json:"is_paid"`
	IsConfirmed           bool    `json:"is_confirmed"`
	IsExpired             bool    `json:"is_expired"`
	AwaitingConfirmation  bool    `json:"awaiting_confirmation"`
}

var newInvoiceCommand = cli.Command{
	Name:      "newinvoice",
	Category:  "Invoices",
	Usage:     "Create a new invoice.",
	ArgsUsage: "amount",
	Flags: []cli.Flag{
		cli.Uint64Flag{Name: "confirmations", Usage: "confirmations required", Value: 1},
		cli.Uint64Flag{Name: "expiry", Usage: "expiration, in blocks after creation"},
		cli.StringFlag{Name: "description", Usage: "opaque description echoed back in the invoice"},
		cli.StringFlag{Name: "callback", Usage: "URL to POST invoice updates to"},
	},
	Action: actionDecorator(newInvoice),
}

func newInvoice(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.ShowCommandHelp(ctx, "newinvoice")
	}

	amount, err := strconv.ParseUint(args.Get(0), 10, 64)
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"amount":                 amount,
		"confirmations_required": ctx.Uint64("confirmations"),
		"expiration_in_blocks":   ctx.Uint64("expiry"),
		"description":            ctx.String("description"),
		"callback":               ctx.String("callback"),
	}

	var inv invoiceView
	if err := getClient(ctx).do("POST", "/invoices", req, &inv); err != nil {
		return err
	}

	printRespJSON(inv)
	return nil
}

var getInvoiceCommand = cli.Command{
	Name:      "getinvoice",
	Category:  "Invoices",
	Usage:     "Fetch the current state of an invoice.",
	ArgsUsage: "invoice_id",
	Action:    actionDecorator(getInvoice),
}

func getInvoice(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.ShowCommandHelp(ctx, "getinvoice")
	}

	var inv invoiceView
	if err := getClient(ctx).do("GET", "/invoices/"+args.Get(0), nil, &inv); err != nil {
		return err
	}

	printRespJSON(inv)
	return nil
}

var removeInvoiceCommand = cli.Command{
	Name:      "removeinvoice",
	Category:  "Invoices",
	Usage:     "Remove an invoice and release its subaddress.",
	ArgsUsage: "invoice_id",
	Action:    actionDecorator(removeInvoice),
}

func removeInvoice(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.ShowCommandHelp(ctx, "removeinvoice")
	}

	if err := getClient(ctx).do("DELETE", "/invoices/"+args.Get(0), nil, nil); err != nil {
		return err
	}

	printRespJSON(map[string]string{"removed": args.Get(0)})
	return nil
}

var listInvoicesCommand = cli.Command{
	Name:     "listinvoices",
	Category: "Invoices",
	Usage:    "List every tracked invoice in a table.",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "json", Usage: "print raw JSON instead of a table"},
	},
	Action: actionDecorator(listInvoices),
}

func listInvoices(ctx *cli.Context) error {
	client := getClient(ctx)

	var ids []string
	if err := client.do("GET", "/invoices", nil, &ids); err != nil {
		return err
	}

	invs := make([]invoiceView, 0, len(ids))
	for _, id := range ids {
		var inv invoiceView
		if err := client.do("GET", "/invoices/"+id, nil, &inv); err != nil {
			return err
		}
		invs = append(invs, inv)
	}

	if ctx.Bool("json") {
		printRespJSON(invs)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Amount Paid", "Amount Requested", "Confirmations", "Paid", "Confirmed", "Expired"})
	for _, inv := range invs {
		confs := "-"
		if inv.Confirmations != nil {
			confs = strconv.FormatUint(*inv.Confirmations, 10) + "/" + strconv.FormatUint(inv.ConfirmationsRequired, 10)
		}
		t.AppendRow(table.Row{
			inv.ID, inv.AmountPaid, inv.AmountRequested, confs,
			inv.IsPaid, inv.IsConfirmed, inv.IsExpired,
		})
	}
	t.Render()

	return nil
}
