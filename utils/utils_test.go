package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, "1.2346", RoundMoney(decimal.RequireFromString("1.23455")).String())
	assert.Equal(t, "1.2345", RoundMoney(decimal.RequireFromString("1.23454")).String())
	assert.Equal(t, "37.9962", Percent(decimal.RequireFromString("199.98"), decimal.NewFromInt(19)).String())
}

type patchDTO struct {
	Notes   *string          `json:"notes"`
	Due     *time.Time       `json:"due,omitempty"`
	Price   *decimal.Decimal `json:"price" db:"unit_price"`
	Skipped *string          `json:"-"`
	Plain   string           `json:"plain"`
}

func TestUpdatesFromPtrDTO(t *testing.T) {
	notes := "  hi "
	price := decimal.RequireFromString("1.234567")
	due := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	skipped := "x"
	dto := patchDTO{Notes: &notes, Price: &price, Due: &due, Skipped: &skipped, Plain: "p"}

	NormalizePtrDTO(&dto)
	got := UpdatesFromPtrDTO(&dto, map[string]string{"due": "due_date"})

	assert.Len(t, got, 3)
	assert.Equal(t, "hi", got["notes"])
	assert.Equal(t, due, got["due_date"])
	assert.Equal(t, "1.2346", got["unit_price"].(decimal.Decimal).String())
}

func TestUpdatesFromPtrDTO_NilFieldsOmitted(t *testing.T) {
	assert.Empty(t, UpdatesFromPtrDTO(&patchDTO{}, nil))
	assert.Empty(t, UpdatesFromPtrDTO(patchDTO{}, nil))
}

type lineDTO struct {
	Name  string
	Price decimal.Decimal
}

type docDTO struct {
	Title *string
	Lines []lineDTO
}

func TestNormalizeDTO(t *testing.T) {
	title := " invoice "
	dto := docDTO{
		Title: &title,
		Lines: []lineDTO{{Name: " a ", Price: decimal.RequireFromString("0.00005")}},
	}
	NormalizeDTO(&dto)

	assert.Equal(t, "invoice", *dto.Title)
	assert.Equal(t, "a", dto.Lines[0].Name)
	assert.Equal(t, "0.0001", dto.Lines[0].Price.String())
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 5, ParseIntDefault(" 5 ", 1))
	assert.Equal(t, 1, ParseIntDefault("", 1))
	assert.Equal(t, 1, ParseIntDefault("-3", 1))
	assert.Equal(t, 1, ParseIntDefault("abc", 1))
}
