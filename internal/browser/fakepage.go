package browser

import "context"

// FakePage is a scriptable in-memory Page used by adapter and workflow
// tests. Elements maps a selector to its text content; a selector present in
// the map exists on the "page". Hooks allow tests to simulate navigation
// failures and post-click page changes.
type FakePage struct {
	CurrentURL string
	PageHTML   string
	Elements   map[string]string

	// OnNavigate, if set, runs instead of the default navigation and may
	// return an error.
	OnNavigate func(url string) error
	// OnClick, if set, runs after a successful click.
	OnClick func(selector string)

	Filled   map[string]string
	Clicked  []string
	Checked  []string
	Selected map[string]string
	Uploaded map[string][]string
	Closed   bool
}

// NewFakePage returns a FakePage with initialized maps.
func NewFakePage() *FakePage {
	return &FakePage{
		Elements: map[string]string{},
		Filled:   map[string]string{},
		Selected: map[string]string{},
		Uploaded: map[string][]string{},
	}
}

func (f *FakePage) Navigate(_ context.Context, url string) error {
	if f.OnNavigate != nil {
		if err := f.OnNavigate(url); err != nil {
			return err
		}
	}
	f.CurrentURL = url
	return nil
}

func (f *FakePage) Location(context.Context) (string, error) { return f.CurrentURL, nil }
func (f *FakePage) HTML(context.Context) (string, error)     { return f.PageHTML, nil }

func (f *FakePage) Exists(_ context.Context, selector string) (bool, error) {
	_, ok := f.Elements[selector]
	return ok, nil
}

func (f *FakePage) Text(_ context.Context, selector string) (string, error) {
	return f.Elements[selector], nil
}

func (f *FakePage) first(selectors []string) (string, bool) {
	for _, sel := range selectors {
		if _, ok := f.Elements[sel]; ok {
			return sel, true
		}
	}
	return "", false
}

func (f *FakePage) FillFirst(_ context.Context, value string, selectors ...string) (bool, error) {
	sel, ok := f.first(selectors)
	if !ok {
		return false, nil
	}
	f.Filled[sel] = value
	return true, nil
}

func (f *FakePage) ClickFirst(_ context.Context, selectors ...string) (bool, error) {
	sel, ok := f.first(selectors)
	if !ok {
		return false, nil
	}
	f.Clicked = append(f.Clicked, sel)
	if f.OnClick != nil {
		f.OnClick(sel)
	}
	return true, nil
}

func (f *FakePage) CheckFirst(_ context.Context, selectors ...string) (bool, error) {
	sel, ok := f.first(selectors)
	if !ok {
		return false, nil
	}
	f.Checked = append(f.Checked, sel)
	return true, nil
}

func (f *FakePage) SelectFirst(_ context.Context, option string, selectors ...string) (bool, error) {
	sel, ok := f.first(selectors)
	if !ok {
		return false, nil
	}
	f.Selected[sel] = option
	return true, nil
}

func (f *FakePage) UploadFirst(_ context.Context, paths []string, selectors ...string) (bool, error) {
	if len(paths) == 0 {
		return false, nil
	}
	sel, ok := f.first(selectors)
	if !ok {
		return false, nil
	}
	f.Uploaded[sel] = paths
	return true, nil
}

func (f *FakePage) Close() { f.Closed = true }
