package market

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relister/internal/browser"
	"relister/internal/model"
)

func validItem() model.ListingItem {
	return model.ListingItem{
		Name:         "ヴィンテージデニムジャケット",
		Price:        3500,
		Description:  "古着です",
		DurationDays: 7,
	}
}

func sellFormPage() *browser.FakePage {
	p := browser.NewFakePage()
	p.Elements[`input[name="title"]`] = ""
	p.Elements[`textarea[name="description"]`] = ""
	p.Elements[`input[name="startprice"]`] = ""
	p.Elements[`select[name="duration"]`] = ""
	p.Elements[`//button[contains(text(),"確認")]`] = "確認"
	p.Elements[`//button[contains(text(),"出品")]`] = "出品"
	return p
}

func TestSubmitListingAssignsIdentifier(t *testing.T) {
	p := sellFormPage()
	p.OnClick = func(sel string) {
		if strings.Contains(sel, "出品") {
			p.CurrentURL = "https://page.auctions.yahoo.co.jp/jp/auction/x987654321"
		}
	}

	id, err := SubmitListing(context.Background(), p, validItem())
	require.NoError(t, err)
	assert.Equal(t, "x987654321", id)
	assert.Equal(t, "ヴィンテージデニムジャケット", p.Filled[`input[name="title"]`])
	assert.Equal(t, "3500", p.Filled[`input[name="startprice"]`])
	assert.Equal(t, "7", p.Selected[`select[name="duration"]`])
}

func TestSubmitListingExtractsIdentifierFromPageText(t *testing.T) {
	p := sellFormPage()
	p.PageHTML = `<html><body>出品が完了しました。オークションID: q11223344</body></html>`

	id, err := SubmitListing(context.Background(), p, validItem())
	require.NoError(t, err)
	assert.Equal(t, "q11223344", id)
}

func TestSubmitListingSilentRejectionReturnsEmptyID(t *testing.T) {
	p := sellFormPage()
	p.PageHTML = `<html><body>エラーが発生しました</body></html>`

	id, err := SubmitListing(context.Background(), p, validItem())
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSubmitListingMissingTitleFieldIsFatal(t *testing.T) {
	p := sellFormPage()
	delete(p.Elements, `input[name="title"]`)

	_, err := SubmitListing(context.Background(), p, validItem())
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "title", missing.Field)
	assert.Empty(t, p.Clicked, "submission must not proceed")
}

func TestSubmitListingMissingPriceFieldIsFatal(t *testing.T) {
	p := sellFormPage()
	delete(p.Elements, `input[name="startprice"]`)

	_, err := SubmitListing(context.Background(), p, validItem())
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "startprice", missing.Field)
	assert.Empty(t, p.Clicked, "submission must not proceed")
}

func TestSubmitListingOptionalFieldsAreSkippedWhenMissing(t *testing.T) {
	p := browser.NewFakePage()
	p.Elements[`input[name="title"]`] = ""
	p.Elements[`input[name="startprice"]`] = ""

	id, err := SubmitListing(context.Background(), p, validItem())
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSubmitListingRequiresAuthentication(t *testing.T) {
	p := sellFormPage()
	p.Elements[loginLinkSelector] = "ログイン"

	_, err := SubmitListing(context.Background(), p, validItem())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSubmitListingValidatesItemFirst(t *testing.T) {
	p := sellFormPage()
	item := validItem()
	item.Price = 0

	_, err := SubmitListing(context.Background(), p, item)
	assert.Error(t, err)
	assert.Empty(t, p.CurrentURL, "no navigation for an invalid item")
}

func TestRelistRotatesIdentifier(t *testing.T) {
	p := browser.NewFakePage()
	p.Elements[`//button[contains(text(),"確認")]`] = "確認"
	p.Elements[`//button[contains(text(),"再出品")]`] = "再出品"
	p.OnClick = func(sel string) {
		if strings.Contains(sel, "再出品") {
			p.CurrentURL = "https://page.auctions.yahoo.co.jp/jp/auction/newid777"
		}
	}

	item := validItem().WithListingID("oldid111")
	newID, err := Relist(context.Background(), p, item)
	require.NoError(t, err)
	assert.Equal(t, "newid777", newID)
	assert.Contains(t, p.CurrentURL, "newid777")
}

func TestRelistWithoutIdentifierIsRejectedImmediately(t *testing.T) {
	p := browser.NewFakePage()

	_, err := Relist(context.Background(), p, validItem())
	assert.ErrorIs(t, err, ErrNoListingID)
	assert.Empty(t, p.CurrentURL, "no remote interaction may happen")
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1,200円", 1200},
		{"980", 980},
		{"現在 12,345円", 12345},
		{"", 0},
		{"ー", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parsePrice(tt.in), tt.in)
	}
}
