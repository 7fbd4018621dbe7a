package balance

import (
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/report"
)

type balanceResponse struct {
	Ingredient IngredientRef   `json:"ingredient"`
	Date       string          `json:"date"`
	In         decimal.Decimal `json:"in"`
	Out        decimal.Decimal `json:"out"`
	Ending     decimal.Decimal `json:"ending"`
	Live       bool            `json:"live"`
}

func newBalanceResponse(b Balance) balanceResponse {
	return balanceResponse{
		Ingredient: b.Ingredient,
		Date:       shared.FormatDate(b.Date),
		In:         b.In,
		Out:        b.Out,
		Ending:     b.Ending,
		Live:       b.Live,
	}
}

type ledgerRowResponse struct {
	Date   string          `json:"date"`
	In     decimal.Decimal `json:"in"`
	Out    decimal.Decimal `json:"out"`
	Ending decimal.Decimal `json:"ending"`
}

type ledgerResponse struct {
	Ingredient IngredientRef       `json:"ingredient"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	Opening    decimal.Decimal     `json:"opening"`
	Closing    decimal.Decimal     `json:"closing"`
	Rows       []ledgerRowResponse `json:"rows"`
}

func newLedgerResponse(l Ledger) ledgerResponse {
	resp := ledgerResponse{
		Ingredient: l.Ingredient,
		From:       shared.FormatDate(l.From),
		To:         shared.FormatDate(l.To),
		Opening:    l.Opening,
		Closing:    l.Closing,
		Rows:       make([]ledgerRowResponse, 0, len(l.Rows)),
	}
	for _, row := range l.Rows {
		resp.Rows = append(resp.Rows, ledgerRowResponse{Date: shared.FormatDate(row.Date), In: row.In, Out: row.Out, Ending: row.Ending})
	}
	return resp
}

type alertsResponse struct {
	Date      string          `json:"date"`
	Threshold decimal.Decimal `json:"threshold"`
	Low       []AlertItem     `json:"low"`
	Out       []AlertItem     `json:"out"`
}

func newAlertsResponse(a Alerts) alertsResponse {
	return alertsResponse{Date: shared.FormatDate(a.Date), Threshold: a.Threshold, Low: a.Low, Out: a.Out}
}

type daySummaryResponse struct {
	Date string          `json:"date"`
	In   decimal.Decimal `json:"in"`
	Out  decimal.Decimal `json:"out"`
	Net  decimal.Decimal `json:"net"`
}

type summaryResponse struct {
	From     string               `json:"from"`
	To       string               `json:"to"`
	TotalIn  decimal.Decimal      `json:"totalIn"`
	TotalOut decimal.Decimal      `json:"totalOut"`
	Net      decimal.Decimal      `json:"net"`
	Days     []daySummaryResponse `json:"days"`
}

func newSummaryResponse(s Summary) summaryResponse {
	resp := summaryResponse{
		From:     shared.FormatDate(s.From),
		To:       shared.FormatDate(s.To),
		TotalIn:  s.TotalIn,
		TotalOut: s.TotalOut,
		Net:      s.Net,
		Days:     make([]daySummaryResponse, 0, len(s.Days)),
	}
	for _, d := range s.Days {
		resp.Days = append(resp.Days, daySummaryResponse{Date: shared.FormatDate(d.Date), In: d.In, Out: d.Out, Net: d.Net})
	}
	return resp
}

func endingSheet(balances []Balance) report.Sheet {
	sheet := report.Sheet{Name: "Ending", Headers: []string{"Code", "Name", "Category", "Date", "In", "Out", "Ending"}}
	for _, b := range balances {
		sheet.AddRow(b.Ingredient.Code, b.Ingredient.Name, b.Ingredient.CategoryCode, b.Date, b.In, b.Out, b.Ending)
	}
	return sheet
}

func ledgerSheet(l Ledger) report.Sheet {
	sheet := report.Sheet{Name: "Ledger", Headers: []string{"Date", "In", "Out", "Ending"}}
	sheet.AddRow("opening", nil, nil, l.Opening)
	for _, row := range l.Rows {
		sheet.AddRow(row.Date, row.In, row.Out, row.Ending)
	}
	return sheet
}

func summarySheet(s Summary) report.Sheet {
	sheet := report.Sheet{Name: "Movement", Headers: []string{"Date", "In", "Out", "Net"}}
	for _, d := range s.Days {
		sheet.AddRow(d.Date, d.In, d.Out, d.Net)
	}
	sheet.AddRow("total", s.TotalIn, s.TotalOut, s.Net)
	return sheet
}
