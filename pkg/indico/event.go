package indico

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/PuerkitoBio/goquery"
)

// Event is one scheduled occurrence as published by the catalog
type Event struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	URL          string         `json:"url"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	Timezone     string         `json:"timezone"`
	Description  string         `json:"description"` // HTML as delivered by Indico
	Location     string         `json:"location"`
	Room         string         `json:"room"`
	Category     string         `json:"category"`
	CategoryID   string         `json:"category_id"`
	CategoryPath []string       `json:"category_path"`
	Type         string         `json:"type"`
	Materials    []MaterialLink `json:"materials,omitempty"`
}

// MaterialLink is a labelled link to an attachment (slides, minutes, ...)
type MaterialLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Category is a node of the catalog hierarchy
type Category struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	ParentID    string     `json:"parent_id,omitempty"`
	ParentTitle string     `json:"parent_title,omitempty"`
	Path        []string   `json:"path,omitempty"` // ancestors then self
	Children    []Category `json:"children,omitempty"`
}

// HasParent reports whether the category sits below the root
func (c Category) HasParent() bool {
	return c.ParentID != ""
}

// Contribution is one timetable entry of an event
type Contribution struct {
	Title     string         `json:"title"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	Speakers  []string       `json:"speakers,omitempty"`
	Materials []MaterialLink `json:"materials,omitempty"`
}

// FullLocation joins location and room the way Indico displays them
func (e Event) FullLocation() string {
	switch {
	case e.Location == "":
		return e.Room
	case e.Room == "" || strings.Contains(e.Location, e.Room):
		return e.Location
	}
	return e.Location + " (" + e.Room + ")"
}

// PlainDescription returns the description with HTML markup stripped
func (e Event) PlainDescription() string {
	return htmlToText(e.Description)
}

func htmlToText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	// Keep paragraph breaks readable once tags are gone
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// flexID accepts ids encoded either as JSON numbers or strings
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// apiDateTime is Indico's nested {"date","time","tz"} timestamp
type apiDateTime struct {
	Date string `json:"date"`
	Time string `json:"time"`
	TZ   string `json:"tz"`
}

func (d apiDateTime) parse() (time.Time, error) {
	loc := time.UTC
	if d.TZ != "" {
		l, err := time.LoadLocation(d.TZ)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown timezone %q: %w", d.TZ, err)
		}
		loc = l
	}
	clock := d.Time
	if clock == "" {
		clock = "00:00:00"
	}
	layout := "2006-01-02 15:04:05"
	if len(clock) == len("15:04") {
		layout = "2006-01-02 15:04"
	}
	t, err := time.ParseInLocation(layout, d.Date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q %q: %w", d.Date, d.Time, err)
	}
	return t, nil
}

type apiAttachment struct {
	Title       string `json:"title"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
	LinkURL     string `json:"link_url"`
}

type apiFolder struct {
	Title       string          `json:"title"`
	Attachments []apiAttachment `json:"attachments"`
}

type apiPerson struct {
	Name      string `json:"name"`
	FullName  string `json:"fullName"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (p apiPerson) display() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.FullName != "":
		return p.FullName
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type apiContribution struct {
	Title       string          `json:"title"`
	StartDate   *apiDateTime    `json:"startDate"`
	EndDate     *apiDateTime    `json:"endDate"`
	Presenters  []apiPerson     `json:"presenters"`
	Speakers    []apiPerson     `json:"speakers"`
	Folders     []apiFolder     `json:"folders"`
	Attachments *apiAttachments `json:"attachments"`
}

type apiAttachments struct {
	Files   []apiAttachment `json:"files"`
	Folders []apiFolder     `json:"folders"`
}

type apiEvent struct {
	ID            flexID            `json:"id"`
	Title         string            `json:"title"`
	URL           string            `json:"url"`
	Description   string            `json:"description"`
	StartDate     apiDateTime       `json:"startDate"`
	EndDate       apiDateTime       `json:"endDate"`
	Timezone      string            `json:"timezone"`
	Location      string            `json:"location"`
	Room          string            `json:"room"`
	Category      string            `json:"category"`
	CategoryID    flexID            `json:"categoryId"`
	Type          string            `json:"type"`
	Folders       []apiFolder       `json:"folders"`
	Contributions []apiContribution `json:"contributions"`
}

func (a apiEvent) toEvent(base *url.URL) (Event, error) {
	start, err := a.StartDate.parse()
	if err != nil {
		return Event{}, fmt.Errorf("event %s start: %w", a.ID, err)
	}
	end, err := a.EndDate.parse()
	if err != nil {
		return Event{}, fmt.Errorf("event %s end: %w", a.ID, err)
	}
	tz := a.StartDate.TZ
	if tz == "" {
		tz = a.Timezone
	}
	ev := Event{
		ID:          string(a.ID),
		Title:       a.Title,
		URL:         a.URL,
		Start:       start,
		End:         end,
		Timezone:    tz,
		Description: a.Description,
		Location:    a.Location,
		Room:        a.Room,
		Category:    a.Category,
		CategoryID:  string(a.CategoryID),
		Type:        a.Type,
		Materials:   folderLinks(a.Folders, base),
	}
	if ev.Category != "" {
		ev.CategoryPath = []string{ev.Category}
	}
	return ev, nil
}

func (a apiContribution) toContribution(base *url.URL) (Contribution, error) {
	if a.StartDate == nil || a.EndDate == nil {
		return Contribution{}, fmt.Errorf("contribution %q has no schedule", a.Title)
	}
	start, err := a.StartDate.parse()
	if err != nil {
		return Contribution{}, err
	}
	end, err := a.EndDate.parse()
	if err != nil {
		return Contribution{}, err
	}
	c := Contribution{Title: a.Title, Start: start, End: end}
	people := a.Presenters
	if len(people) == 0 {
		people = a.Speakers
	}
	for _, p := range people {
		if name := p.display(); name != "" {
			c.Speakers = append(c.Speakers, name)
		}
	}
	c.Materials = a.materials(base)
	return c, nil
}

func (a apiContribution) materials(base *url.URL) []MaterialLink {
	links := folderLinks(a.Folders, base)
	if a.Attachments != nil {
		links = append(links, attachmentLinks(a.Attachments.Files, base)...)
		links = append(links, folderLinks(a.Attachments.Folders, base)...)
	}
	return links
}

func folderLinks(folders []apiFolder, base *url.URL) []MaterialLink {
	var links []MaterialLink
	for _, f := range folders {
		links = append(links, attachmentLinks(f.Attachments, base)...)
	}
	return links
}

func attachmentLinks(atts []apiAttachment, base *url.URL) []MaterialLink {
	var links []MaterialLink
	for _, a := range atts {
		href := a.DownloadURL
		if href == "" {
			href = a.LinkURL
		}
		if href == "" {
			continue
		}
		title := a.Title
		if title == "" {
			title = a.Filename
		}
		links = append(links, MaterialLink{Title: title, URL: resolveURL(base, href)})
	}
	return links
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil || ref.IsAbs() {
		return href
	}
	return base.ResolveReference(ref).String()
}

type apiCategoryRef struct {
	ID    flexID `json:"id"`
	Title string `json:"title"`
}

type apiCategoryInfo struct {
	Category struct {
		ID         flexID           `json:"id"`
		Title      string           `json:"title"`
		ParentPath []apiCategoryRef `json:"parent_path"`
	} `json:"category"`
	Subcategories []apiCategoryRef `json:"subcategories"`
}

func (a apiCategoryInfo) toCategory(fallbackID string) Category {
	cat := Category{
		ID:    string(a.Category.ID),
		Title: a.Category.Title,
	}
	if cat.ID == "" {
		cat.ID = fallbackID
	}
	for _, p := range a.Category.ParentPath {
		cat.Path = append(cat.Path, p.Title)
	}
	if n := len(a.Category.ParentPath); n > 0 {
		parent := a.Category.ParentPath[n-1]
		cat.ParentID = string(parent.ID)
		cat.ParentTitle = parent.Title
	}
	cat.Path = append(cat.Path, cat.Title)
	for _, sub := range a.Subcategories {
		child := Category{
			ID:          string(sub.ID),
			Title:       sub.Title,
			ParentID:    cat.ID,
			ParentTitle: cat.Title,
		}
		child.Path = append(append([]string{}, cat.Path...), sub.Title)
		cat.Children = append(cat.Children, child)
	}
	return cat
}
