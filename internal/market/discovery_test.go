package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relister/internal/browser"
)

const endedPageHTML = `
<html><body><table>
<tr class="item-row">
  <td><a class="title" href="https://page.auctions.yahoo.co.jp/jp/auction/a111">冬物コート</a></td>
  <td class="item-price">2,000円</td>
</tr>
<tr class="item-row">
  <td><a class="title" href="https://example.com/no-id-here">リンク切れ商品</a></td>
  <td class="item-price">500円</td>
</tr>
<tr class="item-row">
  <td><a class="title" href="https://page.auctions.yahoo.co.jp/jp/auction/b222"></a></td>
</tr>
<tr class="item-row">
  <td><a class="title" href="https://page.auctions.yahoo.co.jp/jp/auction/c333">革靴 26cm</a></td>
  <td class="item-price">3,800円</td>
</tr>
</table></body></html>`

func TestUnsoldItemsSkipsUnparseableRows(t *testing.T) {
	p := browser.NewFakePage()
	p.PageHTML = endedPageHTML

	items, err := UnsoldItems(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, items, 2, "rows without a name or identifier are excluded")

	assert.Equal(t, "冬物コート", items[0].Name)
	assert.Equal(t, "a111", items[0].ListingID)
	assert.Equal(t, 2000, items[0].Price)
	assert.Equal(t, "c333", items[1].ListingID)
	assert.Equal(t, 3800, items[1].Price)
}

func TestUnsoldItemsRequiresAuthentication(t *testing.T) {
	p := browser.NewFakePage()
	p.Elements[loginLinkSelector] = "ログイン"

	_, err := UnsoldItems(context.Background(), p)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

const transactionsPageHTML = `
<html><body>
<div class="transaction-item">
  <a class="title" href="/jp/auction/t444">セーター</a>
  <span class="item-price">1,500円</span>
  <a href="https://contact.auctions.yahoo.co.jp/seller/detail?aID=t444">取引ナビ</a>
</div>
<div class="transaction-item">
  <a class="title" href="/jp/show/contact?aID=u555">マフラー</a>
  <span class="item-price">800円</span>
</div>
</body></html>`

func TestPaidItemsExtractsRowsAndDetailLinks(t *testing.T) {
	p := browser.NewFakePage()
	p.PageHTML = transactionsPageHTML
	p.Elements[`select[name="status"]`] = ""

	rows, err := PaidItems(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "t444", rows[0].Item.ListingID)
	assert.Equal(t, "セーター", rows[0].Item.Name)
	assert.Contains(t, rows[0].DetailURL, "aID=t444")

	assert.Equal(t, "u555", rows[1].Item.ListingID, "aID= link form is recognized")
	assert.Empty(t, rows[1].DetailURL, "row without detail link is kept, buyer fetch will fail later")

	assert.Equal(t, "支払い完了", p.Selected[`select[name="status"]`])
}

func TestFetchBuyerReadsAvailableFields(t *testing.T) {
	p := browser.NewFakePage()
	p.Elements[`.buyer-name`] = " 山田 太郎 "
	p.Elements[`[data-testid="shipping-address"]`] = "東京都台東区1-2-3"
	p.Elements[`.postal-code`] = "110-0001"

	buyer, err := FetchBuyer(context.Background(), p, "https://contact.example/detail?aID=t444")
	require.NoError(t, err)
	assert.Equal(t, "山田 太郎", buyer.Name)
	assert.Equal(t, "東京都台東区1-2-3", buyer.Address)
	assert.Equal(t, "110-0001", buyer.PostalCode)
	assert.Empty(t, buyer.Phone, "missing fields stay empty")
}

func TestFetchBuyerWithoutDetailLink(t *testing.T) {
	p := browser.NewFakePage()
	_, err := FetchBuyer(context.Background(), p, "")
	assert.Error(t, err)
}
