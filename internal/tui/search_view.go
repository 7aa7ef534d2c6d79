package tui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rmarinho/convo/internal/search"
	"github.com/rmarinho/convo/internal/store"
)

// SearchView is the in-conversation search panel: a live query input,
// sender and date filters, and a paged result list.
type SearchView struct {
	*tview.Flex
	query   *tview.InputField
	sender  *tview.DropDown
	from    *tview.InputField
	to      *tview.InputField
	results *tview.Table

	onQuery  func(text string)
	onSender func(filter string)
	onDates  func(from, to time.Time)
	onMore   func()
	onOpen   func(msgID string)

	shown []*store.Message
}

// NewSearchView creates the search panel.
func NewSearchView() *SearchView {
	v := &SearchView{}

	v.query = tview.NewInputField().SetLabel(" Search: ").SetFieldWidth(0)
	v.query.SetChangedFunc(func(text string) {
		if v.onQuery != nil {
			v.onQuery(text)
		}
	})

	v.sender = tview.NewDropDown().
		SetLabel(" From: ").
		SetOptions([]string{"anyone", "me", "partner"}, func(_ string, index int) {
			if v.onSender == nil {
				return
			}
			switch index {
			case 1:
				v.onSender(search.SenderMe)
			case 2:
				v.onSender(search.SenderPartner)
			default:
				v.onSender(search.SenderAll)
			}
		})
	v.sender.SetCurrentOption(0)

	v.from = tview.NewInputField().SetLabel(" After: ").SetPlaceholder("YYYY-MM-DD").SetFieldWidth(12)
	v.to = tview.NewInputField().SetLabel(" Before: ").SetPlaceholder("YYYY-MM-DD").SetFieldWidth(12)
	dateDone := func(tcell.Key) { v.fireDates() }
	v.from.SetDoneFunc(dateDone)
	v.to.SetDoneFunc(dateDone)

	v.results = tview.NewTable().SetSelectable(true, false)
	v.results.SetBorder(true)
	v.results.SetTitle(" Results ")
	v.results.SetSelectedStyle(tcell.StyleDefault.Reverse(true))
	v.results.SetSelectedFunc(func(row, col int) {
		if v.onOpen != nil && row >= 0 && row < len(v.shown) {
			v.onOpen(v.shown[row].ID)
		}
	})
	v.results.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'n' {
			if v.onMore != nil {
				v.onMore()
			}
			return nil
		}
		return event
	})

	filters := tview.NewFlex().
		AddItem(v.sender, 0, 1, false).
		AddItem(v.from, 0, 1, false).
		AddItem(v.to, 0, 1, false)

	v.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(v.query, 1, 0, true).
		AddItem(filters, 1, 0, false).
		AddItem(v.results, 0, 1, false)
	return v
}

// SetOnQuery registers the keystroke callback.
func (v *SearchView) SetOnQuery(fn func(string)) { v.onQuery = fn }

// SetOnSender registers the sender-filter callback.
func (v *SearchView) SetOnSender(fn func(string)) { v.onSender = fn }

// SetOnDates registers the date-range callback.
func (v *SearchView) SetOnDates(fn func(from, to time.Time)) { v.onDates = fn }

// SetOnMore registers the next-page callback.
func (v *SearchView) SetOnMore(fn func()) { v.onMore = fn }

// SetOnOpen registers the jump-to-message callback.
func (v *SearchView) SetOnOpen(fn func(msgID string)) { v.onOpen = fn }

// Input returns the query field for focus management.
func (v *SearchView) Input() *tview.InputField { return v.query }

// Results returns the result table for focus management.
func (v *SearchView) Results() *tview.Table { return v.results }

// Reset clears the query, filters, and results.
func (v *SearchView) Reset() {
	v.query.SetText("")
	v.from.SetText("")
	v.to.SetText("")
	v.sender.SetCurrentOption(0)
	v.shown = nil
	v.results.Clear()
	v.results.SetTitle(" Results ")
}

func (v *SearchView) fireDates() {
	if v.onDates == nil {
		return
	}
	parse := func(s string) time.Time {
		if s == "" {
			return time.Time{}
		}
		t, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	v.onDates(parse(v.from.GetText()), parse(v.to.GetText()))
}

// Show replaces the result list.
func (v *SearchView) Show(res search.Results, userID, partnerName string) {
	v.results.Clear()
	v.shown = nil
	v.appendRows(res.Matches, userID, partnerName)

	title := fmt.Sprintf(" Results (%d) ", len(res.Matches))
	if res.Offline {
		title = fmt.Sprintf(" Results (%d, local index) ", len(res.Matches))
	}
	v.results.SetTitle(title)
}

// Append adds another page of results below the current ones.
func (v *SearchView) Append(page []*store.Message, userID, partnerName string) {
	v.appendRows(page, userID, partnerName)
}

func (v *SearchView) appendRows(msgs []*store.Message, userID, partnerName string) {
	for _, m := range msgs {
		row := len(v.shown)
		v.shown = append(v.shown, m)

		sender := partnerName
		if m.SenderID == userID {
			sender = "You"
		}
		when := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
		v.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(sender))))
		v.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(m.Content))).SetExpansion(1))
		v.results.SetCell(row, 2, tview.NewTableCell(when).SetAlign(tview.AlignRight))
	}
}
