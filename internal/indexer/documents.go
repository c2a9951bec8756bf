package indexer

import "strings"

// Document is a unit of source text before splitting.
type Document struct {
	Content string
	Source  string
	DocType string
}

// DefaultURLs are the documentation landing pages fetched by default.
var DefaultURLs = []string{
	"https://experienceleague.adobe.com/en/docs/experience-manager",
	"https://experienceleague.adobe.com/en/docs/experience-manager-cloud-service",
	"https://experienceleague.adobe.com/en/docs/experience-manager-65",
}

const docsBase = "https://experienceleague.adobe.com/en/docs/"

// SampleDocuments returns the built-in product summaries that are indexed on
// every run, so the index is usable even when no page could be fetched.
func SampleDocuments() []Document {
	return []Document{
		{
			Source:  docsBase + "experience-manager",
			DocType: "overview",
			Content: lines(
				"Adobe Experience Manager (AEM) is a comprehensive content management solution",
				"for building websites, mobile apps, and forms. AEM makes it easy to manage",
				"your marketing content and assets.",
				"",
				"Key Features:",
				"- Content Management: Create, manage, and deliver content across channels",
				"- Digital Asset Management: Organize and distribute assets efficiently",
				"- Forms: Create responsive and accessible forms",
				"- Sites: Build responsive websites with reusable components",
				"- Cloud Service: Modern cloud-native architecture",
			),
		},
		{
			Source:  docsBase + "experience-manager-cloud-service",
			DocType: "cloud-service",
			Content: lines(
				"AEM as a Cloud Service is Adobe's cloud-native offering that provides:",
				"- Automatic scaling and updates",
				"- Built-in CDN and security",
				"- Continuous integration and deployment",
				"- Modern architecture with microservices",
				"- GraphQL APIs for headless content delivery",
			),
		},
		{
			Source:  docsBase + "experience-manager-sites",
			DocType: "sites",
			Content: lines(
				"AEM Sites allows you to create responsive websites with:",
				"- Component-based architecture",
				"- Template editor for page layouts",
				"- Style system for design variations",
				"- Multi-site management",
				"- Personalization and targeting",
				"- Integration with Adobe Analytics and Target",
			),
		},
		{
			Source:  docsBase + "experience-manager-assets",
			DocType: "assets",
			Content: lines(
				"AEM Assets (DAM) provides digital asset management capabilities:",
				"- Centralized repository for all digital assets",
				"- Metadata management and tagging",
				"- Smart tags using AI",
				"- Version control and workflows",
				"- Integration with Creative Cloud",
				"- Asset sharing via Brand Portal",
			),
		},
		{
			Source:  docsBase + "experience-manager-dispatcher",
			DocType: "dispatcher",
			Content: lines(
				"AEM Dispatcher is a caching and load balancing tool that:",
				"- Improves website performance through caching",
				"- Provides security by filtering requests",
				"- Load balances across multiple publish instances",
				"- Invalidates cache automatically on content updates",
				"- Configuration via dispatcher.any file",
			),
		},
		{
			Source:  docsBase + "experience-manager-components",
			DocType: "components",
			Content: lines(
				"AEM Components are reusable building blocks:",
				"- Core Components: Production-ready, standardized components",
				"- Custom Components: Build your own using HTL (HTML Template Language)",
				"- Component Dialog: Configure component properties",
				"- Sling Models: Java backend logic for components",
				"- Client Libraries: Manage CSS and JavaScript dependencies",
			),
		},
	}
}

func lines(ls ...string) string { return strings.Join(ls, "\n") }
