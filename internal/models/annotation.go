package models

import "time"

type Category string

const (
	CategoryAI    Category = "AI"
	CategoryHuman Category = "HU"
)

type Service string

const (
	ServiceVision    Service = "GO"
	ServiceCognitive Service = "MI"
	ServiceCraftar   Service = "CR"
	ServiceClarifai  Service = "CL"
)

type Feature string

const (
	FeatureCategory    Feature = "CA"
	FeatureCelebrity   Feature = "CE"
	FeatureDescription Feature = "DE"
	FeatureAdult       Feature = "AD"
	FeatureText        Feature = "TE"
	FeatureFace        Feature = "FA"
	FeatureLogo        Feature = "LO"
	FeatureRecognition Feature = "RE"
	FeatureMap         Feature = "MA"
	FeaturePhone       Feature = "PH"
	FeatureURL         Feature = "UR"
	FeatureCode        Feature = "CO"

	// FeatureTag is not stored in the results table; tag-kind records go to
	// the tags table. It exists so adapters can key label sub-batches the
	// same way as every other feature.
	FeatureTag Feature = "TA"
)

var featureNames = map[Feature]string{
	FeatureCategory:    "category",
	FeatureCelebrity:   "celebrity",
	FeatureDescription: "description",
	FeatureAdult:       "adult",
	FeatureText:        "text",
	FeatureFace:        "face",
	FeatureLogo:        "logo",
	FeatureRecognition: "recognition",
	FeatureMap:         "map",
	FeaturePhone:       "phone",
	FeatureURL:         "url",
	FeatureCode:        "code",
	FeatureTag:         "tag",
}

func (f Feature) Display() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return string(f)
}

var serviceNames = map[Service]string{
	ServiceVision:    "Google Vision",
	ServiceCognitive: "Microsoft Cognitive",
	ServiceCraftar:   "Craftar",
	ServiceClarifai:  "Clarifai",
}

func (s Service) Display() string {
	if name, ok := serviceNames[s]; ok {
		return name
	}
	return string(s)
}

type Tag struct {
	ID        string
	ImageID   string
	Name      string
	Score     *float64
	Category  Category
	Service   Service
	Locale    string
	IsValid   bool
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Result struct {
	ID        string
	ImageID   string
	Name      *string
	Category  Category
	Service   Service
	Feature   Feature
	Locale    string
	IsValid   bool
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
