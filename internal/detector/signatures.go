package detector

import "github.com/RecoveryAshes/sitesnap/internal/models"

// FrameworkSignature 一个框架的签名
type FrameworkSignature struct {
	Key         string
	DisplayName string
	Category    models.FrameworkCategory
	Rules       []Rule
}

// categoryWeights 框架类别对复杂度的贡献, 运行时越重权重越高
var categoryWeights = map[models.FrameworkCategory]int{
	models.CategoryMetaFramework: 4,
	models.CategorySPAFramework:  3,
	models.CategorySiteBuilder:   2,
	models.CategoryStaticSite:    1,
	models.CategoryCMS:           1,
	models.CategoryLibrary:       1,
}

// DefaultSignatures 内置签名集, 顺序即同分时的排序顺序
func DefaultSignatures() []FrameworkSignature {
	return []FrameworkSignature{
		{
			Key: "nextjs", DisplayName: "Next.js", Category: models.CategoryMetaFramework,
			Rules: []Rule{
				scriptSrc(`/_next/static/`, Definitive),
				selector(`script#__NEXT_DATA__`, Definitive),
				selector(`#__next`, Strong),
				generator(`(?i)next\.js`, Definitive),
				inlineScript(`self\.__next_f`, Strong),
			},
		},
		{
			Key: "nuxt", DisplayName: "Nuxt", Category: models.CategoryMetaFramework,
			Rules: []Rule{
				scriptSrc(`/_nuxt/`, Definitive),
				selector(`script#__NUXT_DATA__`, Definitive),
				selector(`#__nuxt`, Strong),
				inlineScript(`window\.__NUXT__`, Definitive),
				generator(`(?i)nuxt`, Definitive),
			},
		},
		{
			Key: "gatsby", DisplayName: "Gatsby", Category: models.CategoryMetaFramework,
			Rules: []Rule{
				selector(`#___gatsby`, Definitive),
				generator(`(?i)gatsby`, Definitive),
				selector(`#gatsby-focus-wrapper`, Strong),
				scriptSrc(`/(webpack-runtime|framework)-[0-9a-f]+\.js`, Moderate),
			},
		},
		{
			Key: "remix", DisplayName: "Remix", Category: models.CategoryMetaFramework,
			Rules: []Rule{
				inlineScript(`window\.__remixContext`, Definitive),
				scriptSrc(`/build/_shared/`, Moderate),
				selector(`link[rel="modulepreload"][href*="/build/"]`, Weak),
			},
		},
		{
			Key: "sveltekit", DisplayName: "SvelteKit", Category: models.CategoryMetaFramework,
			Rules: []Rule{
				scriptSrc(`/_app/immutable/`, Definitive),
				inlineScript(`__sveltekit_`, Definitive),
				attrPrefix(`data-sveltekit-`, Strong),
			},
		},
		{
			Key: "astro", DisplayName: "Astro", Category: models.CategoryStaticSite,
			Rules: []Rule{
				selector(`astro-island`, Definitive),
				generator(`(?i)astro`, Definitive),
				attrPrefix(`data-astro-cid-`, Strong),
				classPattern(`^astro-[a-z0-9]+$`, Strong),
			},
		},
		{
			Key: "angular", DisplayName: "Angular", Category: models.CategorySPAFramework,
			Rules: []Rule{
				selector(`[ng-version]`, Definitive),
				attrPrefix(`_ngcontent-`, Strong),
				attrPrefix(`ng-`, Moderate),
				selector(`app-root`, Moderate),
			},
		},
		{
			Key: "vue", DisplayName: "Vue", Category: models.CategorySPAFramework,
			Rules: []Rule{
				selector(`[data-v-app]`, Definitive),
				attrPrefix(`data-v-`, Strong),
				scriptSrc(`vue(\.runtime)?(\.global)?(\.prod)?(\.min)?\.js`, Strong),
				attrPrefix(`v-`, Moderate),
			},
		},
		{
			Key: "react", DisplayName: "React", Category: models.CategorySPAFramework,
			Rules: []Rule{
				selector(`[data-reactroot]`, Strong),
				scriptSrc(`react(-dom)?(\.production)?(\.min)?\.js`, Strong),
				inlineScript(`ReactDOM\.(render|createRoot|hydrate)`, Moderate),
				selector(`#root`, Weak),
			},
		},
		{
			Key: "svelte", DisplayName: "Svelte", Category: models.CategorySPAFramework,
			Rules: []Rule{
				classPattern(`^svelte-[a-z0-9]+$`, Strong),
			},
		},
		{
			Key: "ember", DisplayName: "Ember", Category: models.CategorySPAFramework,
			Rules: []Rule{
				selector(`.ember-application`, Definitive),
				selector(`meta[name$="/config/environment"]`, Strong),
				selector(`.ember-view`, Strong),
			},
		},
		{
			Key: "alpine", DisplayName: "Alpine.js", Category: models.CategoryLibrary,
			Rules: []Rule{
				scriptSrc(`alpinejs|alpine(\.min)?\.js`, Definitive),
				attrPrefix(`x-data`, Strong),
			},
		},
		{
			Key: "htmx", DisplayName: "htmx", Category: models.CategoryLibrary,
			Rules: []Rule{
				scriptSrc(`htmx(\.org)?(\.min)?\.js|/htmx\.org`, Definitive),
				attrPrefix(`hx-`, Strong),
			},
		},
		{
			Key: "jquery", DisplayName: "jQuery", Category: models.CategoryLibrary,
			Rules: []Rule{
				scriptSrc(`jquery([.-][0-9.]+)?(\.min)?\.js`, Definitive),
				inlineScript(`jQuery\(|\$\(document\)\.ready`, Moderate),
			},
		},
		{
			Key: "wordpress", DisplayName: "WordPress", Category: models.CategoryCMS,
			Rules: []Rule{
				scriptSrc(`/wp-(content|includes)/`, Definitive),
				generator(`(?i)wordpress`, Definitive),
				selector(`link[href*="/wp-content/"]`, Strong),
			},
		},
		{
			Key: "webflow", DisplayName: "Webflow", Category: models.CategorySiteBuilder,
			Rules: []Rule{
				selector(`html[data-wf-page]`, Definitive),
				generator(`(?i)webflow`, Definitive),
				scriptSrc(`webflow\.[a-z0-9.]*js|website-files\.com`, Strong),
			},
		},
		{
			Key: "framer", DisplayName: "Framer", Category: models.CategorySiteBuilder,
			Rules: []Rule{
				generator(`(?i)framer`, Definitive),
				scriptSrc(`framerusercontent\.com|framer\.com/m/`, Strong),
				selector(`#__framer-badge-container`, Strong),
				attrPrefix(`data-framer-`, Strong),
			},
		},
		{
			Key: "wix", DisplayName: "Wix", Category: models.CategorySiteBuilder,
			Rules: []Rule{
				generator(`(?i)wix\.com`, Definitive),
				scriptSrc(`static\.parastorage\.com|static\.wixstatic\.com`, Strong),
			},
		},
		{
			Key: "squarespace", DisplayName: "Squarespace", Category: models.CategorySiteBuilder,
			Rules: []Rule{
				inlineScript(`Static\.SQUARESPACE_CONTEXT`, Definitive),
				scriptSrc(`(static1|assets)\.squarespace\.com`, Strong),
			},
		},
		{
			Key: "shopify", DisplayName: "Shopify", Category: models.CategorySiteBuilder,
			Rules: []Rule{
				inlineScript(`Shopify\.shop\s*=|window\.Shopify`, Definitive),
				scriptSrc(`cdn\.shopify\.com`, Strong),
			},
		},
		{
			Key: "hugo", DisplayName: "Hugo", Category: models.CategoryStaticSite,
			Rules: []Rule{
				generator(`(?i)hugo`, Definitive),
			},
		},
		{
			Key: "docusaurus", DisplayName: "Docusaurus", Category: models.CategoryStaticSite,
			Rules: []Rule{
				selector(`#__docusaurus`, Definitive),
				generator(`(?i)docusaurus`, Definitive),
			},
		},
	}
}
