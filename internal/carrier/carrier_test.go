package carrier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relister/internal/browser"
	"relister/internal/model"
)

func shippableItem() model.ListingItem {
	item := model.ListingItem{
		Name:         "冬物コート",
		Price:        2000,
		DurationDays: 7,
		Buyer: model.BuyerInfo{
			Name:       "山田 太郎",
			Address:    "東京都台東区1-2-3",
			PostalCode: "１１０−０００１",
			Phone:      "０９０-１２３４-５６７８",
		},
	}
	return item.WithListingID("a111")
}

func portalPage() *browser.FakePage {
	p := browser.NewFakePage()
	p.Elements[businessTabSelector] = "法人のお客さま"
	p.Elements[userIDSelector] = ""
	p.Elements[passwordSelector] = ""
	p.Elements[loginButtonSelector] = "ログイン"
	p.Elements[`//a[contains(text(),"e飛伝")]`] = "e飛伝"
	p.Elements[`input[name="postal_code"]`] = ""
	p.Elements[`input[name="address"]`] = ""
	p.Elements[`input[name="name"]`] = ""
	p.Elements[`input[name="phone"]`] = ""
	p.Elements[`input[name="product_name"]`] = ""
	p.Elements[`//button[contains(text(),"確認")]`] = "確認"
	p.Elements[`//button[contains(text(),"登録")]`] = "登録"
	return p
}

func setCredentials(t *testing.T) {
	t.Setenv(UserIDEnv, "corp-user")
	t.Setenv(PasswordEnv, "corp-pass")
}

func TestRegisterSlipFillsNormalizedRecipient(t *testing.T) {
	setCredentials(t)
	p := portalPage()
	p.Elements[`.tracking-number`] = " 123456789012 "

	tracking, err := RegisterSlip(context.Background(), p, shippableItem())
	require.NoError(t, err)

	assert.Equal(t, "123456789012", tracking)
	assert.Equal(t, "corp-user", p.Filled[userIDSelector])
	assert.Equal(t, "corp-pass", p.Filled[passwordSelector])
	assert.Equal(t, "1100001", p.Filled[`input[name="postal_code"]`])
	assert.Equal(t, "09012345678", p.Filled[`input[name="phone"]`])
	assert.Equal(t, "山田 太郎", p.Filled[`input[name="name"]`])
	assert.Equal(t, "東京都台東区1-2-3", p.Filled[`input[name="address"]`])
	assert.Contains(t, p.Clicked, `//button[contains(text(),"登録")]`)
}

func TestRegisterSlipSucceedsWithoutTrackingNumber(t *testing.T) {
	setCredentials(t)
	p := portalPage()

	tracking, err := RegisterSlip(context.Background(), p, shippableItem())
	require.NoError(t, err)
	assert.Empty(t, tracking)
}

func TestRegisterSlipExtractsTrackingNumberFromPageText(t *testing.T) {
	setCredentials(t)
	p := portalPage()
	p.PageHTML = `<html><body>受付完了 送り状番号: 9876543210</body></html>`

	tracking, err := RegisterSlip(context.Background(), p, shippableItem())
	require.NoError(t, err)
	assert.Equal(t, "9876543210", tracking)
}

func TestRegisterSlipPreconditions(t *testing.T) {
	setCredentials(t)
	tests := []struct {
		name   string
		mutate func(*model.ListingItem)
	}{
		{"no listing identifier", func(i *model.ListingItem) { *i = model.ListingItem{Name: i.Name, Buyer: i.Buyer} }},
		{"no buyer name", func(i *model.ListingItem) { i.Buyer.Name = "" }},
		{"no buyer address", func(i *model.ListingItem) { i.Buyer.Address = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := portalPage()
			item := shippableItem()
			tt.mutate(&item)

			_, err := RegisterSlip(context.Background(), p, item)
			var precondition *PreconditionError
			require.ErrorAs(t, err, &precondition)
			assert.Empty(t, p.CurrentURL, "no remote interaction may happen")
			assert.Empty(t, p.Clicked)
		})
	}
}

func TestRegisterSlipRequiresCredentials(t *testing.T) {
	t.Setenv(UserIDEnv, "")
	t.Setenv(PasswordEnv, "")
	p := portalPage()

	_, err := RegisterSlip(context.Background(), p, shippableItem())
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Empty(t, p.CurrentURL, "credential check precedes navigation")
}

func TestRegisterSlipRejectionBannerBeforeSubmit(t *testing.T) {
	setCredentials(t)
	p := portalPage()
	p.Elements[`.error`] = "お届け先の住所が不正です"

	_, err := RegisterSlip(context.Background(), p, shippableItem())
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Contains(t, rejection.Banner, "住所")
	assert.NotContains(t, p.Clicked, `//button[contains(text(),"登録")]`, "banner before submit blocks the final click")
}

func TestRegisterSlipRejectionBannerAfterSubmit(t *testing.T) {
	setCredentials(t)
	p := portalPage()
	p.OnClick = func(sel string) {
		if sel == `//button[contains(text(),"登録")]` {
			p.Elements[`.alert-danger`] = "登録に失敗しました"
		}
	}

	_, err := RegisterSlip(context.Background(), p, shippableItem())
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
}

func TestNormalizeContactNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"110-0001", "1100001"},
		{"１１０−０００１", "1100001"},
		{"03ー1234ー5678", "0312345678"},
		{" 090‐1234‐5678 ", "09012345678"},
		{"０３（１２）", "03(12)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeContactNumber(tt.in), tt.in)
	}
}
