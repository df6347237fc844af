package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"margarita-listings/gazetteer"
	"margarita-listings/models"
	"margarita-listings/utils"
)

const (
	minPrice = 1_000
	maxPrice = 10_000_000

	maxBedrooms  = 20
	maxBathrooms = 10
	maxParking   = 10
	minAreaM2    = 20
	maxAreaM2    = 50_000

	baseQuality       = 50
	maxFeatureQuality = 10
)

// Rejection explains why a caption did not produce a listing. It is an
// expected outcome, not an error.
type Rejection struct {
	Stage  string
	Reason string
}

func (r *Rejection) String() string {
	return r.Stage + ": " + r.Reason
}

// Rejection stages, in the order the filters run.
const (
	StageSaleIntent = "sale-intent"
	StageCategory   = "category"
	StagePrice      = "price"
	StageMalformed  = "malformed"
	StageLocation   = "location"
)

// amount matches "85.000", "85,000", "1.200.000,50", "85" and "1,5".
const amount = `(\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d+)?)`

// multiplier matches words that scale an amount.
const multiplier = `(?:\s*(mil|k|thousand|millones|millon|million|mm)\b)?`

var (
	saleRegexp     = regexp.MustCompile(`\b(?:for sale|se vende|vendo|vende|venta|selling|sale|precio|price|oportunidad|opportunity|inversion|invierta|investment)\b`)
	currencyRegexp = regexp.MustCompile(`(?:us\$|\$|usd)\s*\d`)
	rentalRegexp   = regexp.MustCompile(`\b(?:for rent|alquil\w*|arrend\w*|arriend\w*|rent(?:a|as|o|an|ar|s|ado|ada|al|als|ed|ing)?)\b`)

	categoryRegexp = regexp.MustCompile(`\b(?:casas?|house|home|townhouse|quinta|chalet|villa|apartamentos?|apto|apartment|penthouse|condo|tipo estudio|terrenos?|parcelas?|lotes?|land|(?:empty|vacant|building|corner) lot|local|locales|oficinas?|galpon|commercial|office|warehouse|habitacion|room|propiedad|property|inmueble|residencias?|residence)\b`)

	apartmentRegexp  = regexp.MustCompile(`\b(?:apartamentos?|apto|apartment|penthouse|condo|tipo estudio)\b`)
	landRegexp       = regexp.MustCompile(`\b(?:terrenos?|parcelas?|lotes?|land|(?:empty|vacant|building|corner) lot)\b`)
	commercialRegexp = regexp.MustCompile(`\b(?:local comercial|local|locales|oficinas?|galpon|commercial|office|warehouse)\b`)

	bedroomsRegexp  = regexp.MustCompile(`\b(\d{1,2})\s*(?:habitacion(?:es)?|habs?\b|cuartos?\b|dormitorios?\b|recamaras?\b|bedrooms?\b|beds?\b)`)
	bathroomsRegexp = regexp.MustCompile(`\b(\d{1,2})\s*(?:banos?|bathrooms?|baths?)\b`)
	areaRegexp      = regexp.MustCompile(amount + `\s*(?:m2|m²|mt2|mts2|mts²|mts|mtrs|metros cuadrados|sqm|sq m)`)
	parkingRegexp   = regexp.MustCompile(`\b(\d{1,2})\s*(?:puestos?(?:\s+de\s+estacionamiento)?|estacionamientos?|parking(?:\s+spots?)?|garajes?)\b`)

	soldRegexp     = regexp.MustCompile(`\b(?:vendid[oa]s?|sold|ya no esta disponible)\b`)
	reservedRegexp = regexp.MustCompile(`\b(?:reservad[oa]s?|reserved|en negociacion|under contract)\b`)
)

// pricePattern is one price matcher. Patterns are tried in order.
type pricePattern struct {
	name   string
	re     *regexp.Regexp
	amount int
	mult   int
}

var pricePatterns = []pricePattern{
	{
		name:   "currency-prefix",
		re:     regexp.MustCompile(`(?:us\$|\$|usd)\s*` + amount + multiplier),
		amount: 1, mult: 2,
	},
	{
		name:   "usd-suffix",
		re:     regexp.MustCompile(amount + multiplier + `\s*(?:usd|dolares|dollars|dls)\b`),
		amount: 1, mult: 2,
	},
	{
		name:   "thousand-usd",
		re:     regexp.MustCompile(amount + `\s*(mil|thousand)\b[^\d]{0,20}?\b(?:usd|dolares|dollars)\b`),
		amount: 1, mult: 2,
	},
	{
		name:   "price-label",
		re:     regexp.MustCompile(`\b(?:precio|price)\b\s*:?\s*` + amount + multiplier),
		amount: 1, mult: 2,
	},
}

// featurePattern maps a matcher to one canonical tag.
type featurePattern struct {
	tag string
	re  *regexp.Regexp
}

var featurePatterns = []featurePattern{
	{"pool", regexp.MustCompile(`\b(?:piscina|pool|alberca)\b`)},
	{"sea view", regexp.MustCompile(`\b(?:vista al mar|vista mar|frente al mar|sea view|ocean view|oceanfront|beachfront)\b`)},
	{"furnished", regexp.MustCompile(`\b(?:amoblad[oa]s?|amueblad[oa]s?|furnished)\b`)},
	{"air conditioning", regexp.MustCompile(`\b(?:aires? acondicionados?|a/a|a/c|air conditioning)\b`)},
	{"generator", regexp.MustCompile(`\b(?:planta electrica|generador|generator)\b`)},
	{"parking", regexp.MustCompile(`\b(?:estacionamientos?|puestos? de estacionamiento|parking|garajes?|garage|cochera)\b`)},
	{"24h security", regexp.MustCompile(`\b(?:vigilancia|seguridad|security)\s+(?:privada\s+)?24|\b24\s*(?:h|hrs|horas|/7)?\s+(?:de\s+)?(?:vigilancia|seguridad|security)\b`)},
	{"equipped kitchen", regexp.MustCompile(`\b(?:cocina equipada|cocina empotrada|equipped kitchen)\b`)},
	{"terrace", regexp.MustCompile(`\b(?:terraza|balcon|terrace|balcony)\b`)},
	{"garden", regexp.MustCompile(`\b(?:jardin(?:es)?|garden|areas verdes)\b`)},
}

// caption carries the state threaded through the filters and extractors.
type caption struct {
	folded    string
	rationale []string
	listing   *models.Listing
}

func (c *caption) note(key, value string) {
	c.rationale = append(c.rationale, key+"="+value)
}

// captionFilter rejects a caption by returning a non-empty reason.
type captionFilter struct {
	stage string
	check func(c *caption) string
}

// fieldExtractor fills listing attributes; it never rejects.
type fieldExtractor func(e *Extractor, c *caption, zoneHint string)

// Extractor is the rule engine turning captions into candidate listings.
type Extractor struct {
	gaz     *gazetteer.Gazetteer
	logger  *utils.Logger
	now     func() time.Time
	filters []captionFilter
	fields  []fieldExtractor
}

// NewExtractor creates an Extractor backed by the given gazetteer.
func NewExtractor(gaz *gazetteer.Gazetteer, logger *utils.Logger) *Extractor {
	return &Extractor{
		gaz:    gaz,
		logger: logger,
		now:    time.Now,
		filters: []captionFilter{
			{StageSaleIntent, checkSaleIntent},
			{StageCategory, checkCategory},
			{StagePrice, checkPrice},
		},
		fields: []fieldExtractor{
			extractZone,
			extractCategory,
			extractRooms,
			extractArea,
			extractFeatures,
			extractStatus,
		},
	}
}

// Extract runs the filters in order and, if all pass, extracts every
// attribute it can find. A nil listing comes with the first rejection.
func (e *Extractor) Extract(text, zoneHint string) (*models.Listing, *Rejection) {
	c := &caption{
		folded: utils.FoldText(text),
		listing: &models.Listing{
			Caption:  utils.NormaliseText(text),
			Status:   models.StatusAvailable,
			Approval: models.ApprovalPending,
			Features: []string{},
		},
	}
	if c.folded == "" {
		return nil, &Rejection{Stage: StageMalformed, Reason: "empty caption"}
	}

	for _, f := range e.filters {
		if reason := f.check(c); reason != "" {
			rej := &Rejection{Stage: f.stage, Reason: reason}
			e.logger.Debug("[extractor] Rejected (%s): %.60q", rej, c.folded)
			return nil, rej
		}
	}

	for _, extract := range e.fields {
		extract(e, c, zoneHint)
	}

	l := c.listing
	if l.PriceUSD != nil && l.AreaM2 != nil {
		l.PricePerM2 = models.Float(*l.PriceUSD / *l.AreaM2)
	}
	l.QualityScore = QualityScore(l)
	l.Confidence = float64(l.QualityScore) / 100
	l.Title = fmt.Sprintf("%s in %s", l.Category.Label(), l.Zone)
	c.note("quality", strconv.Itoa(l.QualityScore))
	l.Rationale = strings.Join(c.rationale, ";")
	l.ID = uuid.NewString()
	l.UpdatedAt = e.now()

	return l, nil
}

// FromRecord extracts a listing from a raw record and carries over the
// record's source metadata.
func (e *Extractor) FromRecord(rec *models.RawRecord) (*models.Listing, *Rejection) {
	l, rej := e.Extract(rec.Caption, rec.ZoneHint)
	if rej != nil {
		return nil, rej
	}
	l.Platform = rec.Platform
	l.SourceURL = strings.TrimSpace(rec.SourceURL)
	l.ThumbnailURL = rec.ThumbnailURL
	l.OwnerHandle = rec.OwnerHandle
	l.Address = rec.Address
	l.PostedAt = rec.PostedAt
	if l.PostedAt.IsZero() {
		l.PostedAt = rec.ScrapedAt
	}
	return l, nil
}

// QualityScore rates completeness: 50 base, +15 price, +10 bedrooms,
// +5 bathrooms, +10 area, +2 per feature up to +10, capped at 100.
func QualityScore(l *models.Listing) int {
	score := baseQuality
	if l.PriceUSD != nil {
		score += 15
	}
	if l.Bedrooms != nil {
		score += 10
	}
	if l.Bathrooms != nil {
		score += 5
	}
	if l.AreaM2 != nil {
		score += 10
	}
	score += min(2*len(l.Features), maxFeatureQuality)
	return min(score, 100)
}

// ── filters ─────────────────────────────────────────────────────────────

func checkSaleIntent(c *caption) string {
	if m := rentalRegexp.FindString(c.folded); m != "" {
		return "rental keyword " + strconv.Quote(m)
	}
	if m := saleRegexp.FindString(c.folded); m != "" {
		c.note("sale", m)
		return ""
	}
	if currencyRegexp.MatchString(c.folded) {
		c.note("sale", "currency")
		return ""
	}
	return "no sale keyword"
}

func checkCategory(c *caption) string {
	m := categoryRegexp.FindString(c.folded)
	if m == "" {
		return "no property keyword"
	}
	c.note("property", m)
	return ""
}

func checkPrice(c *caption) string {
	for _, p := range pricePatterns {
		m := p.re.FindStringSubmatch(c.folded)
		if m == nil {
			continue
		}
		value, ok := parseAmount(m[p.amount], m[p.mult])
		if !ok || value < minPrice || value > maxPrice {
			continue
		}
		c.listing.PriceUSD = models.Float(value)
		c.note("price", p.name+":"+strconv.FormatFloat(value, 'f', -1, 64))
		return ""
	}
	return "no price in range"
}

// ── field extractors ────────────────────────────────────────────────────

func extractZone(e *Extractor, c *caption, zoneHint string) {
	if strings.TrimSpace(zoneHint) != "" {
		if entry, ok := e.gaz.Lookup(zoneHint); ok {
			c.listing.Zone = entry.Name
			c.note("zone", "hint")
			return
		}
	}
	if entry, _, ok := e.gaz.DetectZone(c.folded); ok {
		c.listing.Zone = entry.Name
		c.note("zone", "keyword")
		return
	}
	c.listing.Zone = gazetteer.IslandZone
	c.note("zone", "default")
}

func extractCategory(_ *Extractor, c *caption, _ string) {
	switch {
	case apartmentRegexp.MatchString(c.folded):
		c.listing.Category = models.CategoryApartment
	case landRegexp.MatchString(c.folded):
		c.listing.Category = models.CategoryLand
	case commercialRegexp.MatchString(c.folded):
		c.listing.Category = models.CategoryCommercial
	default:
		c.listing.Category = models.CategoryHouse
	}
	c.note("category", string(c.listing.Category))
}

func extractRooms(_ *Extractor, c *caption, _ string) {
	c.listing.Bedrooms = boundedCount(bedroomsRegexp, c.folded, maxBedrooms)
	c.listing.Bathrooms = boundedCount(bathroomsRegexp, c.folded, maxBathrooms)
	c.listing.Parking = boundedCount(parkingRegexp, c.folded, maxParking)
}

func extractArea(_ *Extractor, c *caption, _ string) {
	m := areaRegexp.FindStringSubmatch(c.folded)
	if m == nil {
		return
	}
	area, ok := parseAmount(m[1], "")
	if !ok || area < minAreaM2 || area > maxAreaM2 {
		return
	}
	c.listing.AreaM2 = models.Float(area)
}

func extractFeatures(_ *Extractor, c *caption, _ string) {
	for _, f := range featurePatterns {
		if f.re.MatchString(c.folded) {
			c.listing.Features = append(c.listing.Features, f.tag)
		}
	}
}

func extractStatus(_ *Extractor, c *caption, _ string) {
	switch {
	case soldRegexp.MatchString(c.folded):
		c.listing.Status = models.StatusSold
	case reservedRegexp.MatchString(c.folded):
		c.listing.Status = models.StatusReserved
	default:
		c.listing.Status = models.StatusAvailable
	}
}

// boundedCount returns the first captured count in (0, limit], or nil.
func boundedCount(re *regexp.Regexp, text string, limit int) *int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n > limit {
		return nil
	}
	return models.Int(n)
}

var (
	groupedRegexp        = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+$`)
	groupedDecimalRegexp = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+[.,]\d{1,2}$`)
)

// parseAmount reads numbers written with either "." or "," as thousands
// separator and applies a multiplier word.
func parseAmount(raw, mult string) (float64, bool) {
	var clean string
	switch {
	case groupedRegexp.MatchString(raw):
		clean = strings.NewReplacer(".", "", ",", "").Replace(raw)
	case groupedDecimalRegexp.MatchString(raw):
		cut := strings.LastIndexAny(raw, ".,")
		clean = strings.NewReplacer(".", "", ",", "").Replace(raw[:cut]) + "." + raw[cut+1:]
	default:
		clean = strings.Replace(raw, ",", ".", 1)
	}

	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}

	switch mult {
	case "mil", "k", "thousand":
		value *= 1_000
	case "millones", "millon", "million", "mm":
		value *= 1_000_000
	}
	return value, true
}
