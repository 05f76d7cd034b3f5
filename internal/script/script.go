package script

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind selects which automation script to generate.
type Kind string

const (
	// KindDemo drives the research-portal walkthrough with page analysis
	// and a full-page screenshot.
	KindDemo Kind = "demo"
	// KindResearch performs a deep analysis of an arbitrary URL.
	KindResearch Kind = "research"
	// KindDefault is the minimal smoke script.
	KindDefault Kind = "default"
)

const demoTarget = "https://scholar.google.com"

// Options configures script generation. Zero values fall back to the
// shipped defaults (1280x720 viewport, 45s navigation timeout).
type Options struct {
	ViewportWidth    int
	ViewportHeight   int
	NavTimeout       time.Duration
	ScreenshotPrefix string
	Headless         bool
}

func (o Options) withDefaults() Options {
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = 1280
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 720
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 45 * time.Second
	}
	if o.ScreenshotPrefix == "" {
		o.ScreenshotPrefix = "analysis"
	}
	return o
}

// Generator renders automation scripts for the Node.js runner.
type Generator struct {
	opts Options
}

// NewGenerator constructs a Generator with the provided defaults.
func NewGenerator(opts Options) *Generator {
	return &Generator{opts: opts.withDefaults()}
}

// Render produces the JavaScript for the requested kind. The research kind
// requires a target URL; other kinds ignore it.
func (g *Generator) Render(kind Kind, targetURL string) (string, error) {
	switch kind {
	case KindDemo:
		return g.render(demoBody(g.opts)), nil
	case KindResearch:
		trimmed := strings.TrimSpace(targetURL)
		if trimmed == "" {
			return "", fmt.Errorf("research script requires a target URL")
		}
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return "", fmt.Errorf("invalid target URL %q", targetURL)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return "", fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
		}
		return g.render(researchBody(g.opts, parsed.String())), nil
	case KindDefault, "":
		return g.render(defaultBody()), nil
	default:
		return "", fmt.Errorf("unknown script kind %q", kind)
	}
}

func (g *Generator) render(body string) string {
	var b strings.Builder
	b.WriteString("const puppeteer = require('puppeteer');\n")
	b.WriteString("const delay = ms => new Promise(resolve => setTimeout(resolve, ms));\n\n")
	b.WriteString("(async () => {\n")
	b.WriteString("  try {\n")
	b.WriteString("    console.log('browser automation starting');\n")
	fmt.Fprintf(&b, "    const browser = await puppeteer.launch({\n")
	fmt.Fprintf(&b, "      headless: %t,\n", g.opts.Headless)
	fmt.Fprintf(&b, "      defaultViewport: { width: %d, height: %d },\n", g.opts.ViewportWidth, g.opts.ViewportHeight)
	b.WriteString("      args: ['--no-sandbox', '--disable-setuid-sandbox']\n")
	b.WriteString("    });\n")
	b.WriteString("    const page = await browser.newPage();\n")
	b.WriteString(body)
	b.WriteString("    await browser.close();\n")
	b.WriteString("    console.log('automation completed successfully');\n")
	b.WriteString("  } catch (error) {\n")
	b.WriteString("    console.error('automation error:', error.message);\n")
	b.WriteString("    process.exit(1);\n")
	b.WriteString("  }\n")
	b.WriteString("})();\n")
	return b.String()
}

// analysisSnippet is the in-page collection routine shared by the demo and
// research bodies. It returns the metric groups the report parser reads.
const analysisSnippet = `      const countElements = (selector) => document.querySelectorAll(selector).length;
      const text = document.body.innerText;
      const words = text.split(/\s+/).filter(w => w.length > 0);
      return {
        title: document.title,
        url: window.location.href,
        charset: document.characterSet,
        language: document.documentElement.lang || '',
        textLength: text.length,
        wordCount: words.length,
        readingTime: Math.ceil(words.length / 200),
        totalLinks: countElements('a'),
        externalLinks: Array.from(document.querySelectorAll('a')).filter(a =>
          a.href && !a.href.includes(window.location.hostname)).length,
        images: countElements('img'),
        forms: countElements('form'),
        buttons: countElements('button'),
        inputs: countElements('input'),
        paragraphs: countElements('p'),
        lists: countElements('ul, ol'),
        tables: countElements('table'),
        headings: {
          h1: countElements('h1'), h2: countElements('h2'), h3: countElements('h3'),
          h4: countElements('h4'), h5: countElements('h5'), h6: countElements('h6')
        },
        scripts: countElements('script'),
        stylesheets: countElements('link[rel="stylesheet"]'),
        domElements: document.getElementsByTagName('*').length,
        hasServiceWorker: 'serviceWorker' in navigator,
        hasLocalStorage: typeof(Storage) !== 'undefined',
        loadTime: performance.timing.loadEventEnd - performance.timing.navigationStart,
        domContentLoaded: performance.timing.domContentLoadedEventEnd - performance.timing.navigationStart,
        seo: {
          hasTitle: !!document.title,
          titleLength: document.title.length,
          hasMetaDescription: !!document.querySelector('meta[name="description"]'),
          hasCanonical: !!document.querySelector('link[rel="canonical"]'),
          hasRobots: !!document.querySelector('meta[name="robots"]'),
          structuredData: countElements('script[type="application/ld+json"]')
        },
        accessibility: {
          altTextsComplete: Array.from(document.querySelectorAll('img')).every(img => img.alt),
          ariaLabels: countElements('[aria-label]'),
          hasHeadingStructure: countElements('h1') > 0,
          hasLangAttribute: document.documentElement.hasAttribute('lang'),
          focusableElements: countElements('a, button, input, select, textarea, [tabindex]')
        }
      };
`

// reportSnippet prints the line-oriented report. The dashboard parser keys
// off these exact labels.
const reportSnippet = `    console.log('WEBSITE ANALYSIS REPORT');
    console.log('='.repeat(50));
    console.log('Title: ' + analysis.title);
    console.log('URL: ' + analysis.url);
    console.log('Language: ' + (analysis.language || 'not specified'));
    console.log('Character Set: ' + analysis.charset);
    console.log('');
    console.log('CONTENT METRICS:');
    console.log('  Word Count: ' + analysis.wordCount.toLocaleString() + ' words');
    console.log('  Text Length: ' + analysis.textLength.toLocaleString() + ' characters');
    console.log('  Estimated Reading Time: ' + analysis.readingTime + ' minutes');
    console.log('  Images: ' + analysis.images);
    console.log('');
    console.log('LINK ANALYSIS:');
    console.log('  Total Links: ' + analysis.totalLinks);
    console.log('  External Links: ' + analysis.externalLinks);
    console.log('  Internal Links: ' + (analysis.totalLinks - analysis.externalLinks));
    console.log('');
    console.log('STRUCTURE ANALYSIS:');
    console.log('  H1 Headings: ' + analysis.headings.h1);
    console.log('  H2 Headings: ' + analysis.headings.h2);
    console.log('  H3 Headings: ' + analysis.headings.h3);
    console.log('  Paragraphs: ' + analysis.paragraphs);
    console.log('  Lists: ' + analysis.lists);
    console.log('  Tables: ' + analysis.tables);
    console.log('  Total DOM Elements: ' + analysis.domElements.toLocaleString());
    console.log('');
    console.log('INTERACTIVE ELEMENTS:');
    console.log('  Forms: ' + analysis.forms);
    console.log('  Buttons: ' + analysis.buttons);
    console.log('  Input Fields: ' + analysis.inputs);
    console.log('');
    console.log('TECHNICAL DETAILS:');
    console.log('  JavaScript Files: ' + analysis.scripts);
    console.log('  CSS Stylesheets: ' + analysis.stylesheets);
    console.log('  Service Worker: ' + (analysis.hasServiceWorker ? 'available' : 'not available'));
    console.log('  Local Storage: ' + (analysis.hasLocalStorage ? 'available' : 'not available'));
    console.log('');
    console.log('PERFORMANCE METRICS:');
    console.log('  Total Load Time: ' + analysis.loadTime + 'ms');
    console.log('  DOM Content Loaded: ' + analysis.domContentLoaded + 'ms');
    console.log('');
    console.log('SEO ANALYSIS:');
    console.log('  Page Title: ' + (analysis.seo.hasTitle ? 'present' : 'missing') + ' (' + analysis.seo.titleLength + ' chars)');
    console.log('  Meta Description: ' + (analysis.seo.hasMetaDescription ? 'present' : 'missing'));
    console.log('  Canonical URL: ' + (analysis.seo.hasCanonical ? 'present' : 'missing'));
    console.log('  Robots Meta: ' + (analysis.seo.hasRobots ? 'present' : 'missing'));
    console.log('  Structured Data: ' + analysis.seo.structuredData + ' schemas found');
    console.log('');
    console.log('ACCESSIBILITY ANALYSIS:');
    console.log('  Alt Text Coverage: ' + (analysis.accessibility.altTextsComplete ? 'complete' : 'incomplete'));
    console.log('  ARIA Labels: ' + analysis.accessibility.ariaLabels + ' elements');
    console.log('  Heading Structure: ' + (analysis.accessibility.hasHeadingStructure ? 'present' : 'missing'));
    console.log('  Language Attribute: ' + (analysis.accessibility.hasLangAttribute ? 'present' : 'missing'));
    console.log('  Focusable Elements: ' + analysis.accessibility.focusableElements);
`

const qualitySnippet = `    const contentQuality = Math.min(100, analysis.wordCount / 10);
    const totalHeadings = Object.values(analysis.headings).reduce((a, b) => a + b, 0);
    const structureQuality = Math.min(100, totalHeadings * 10);
    const seoChecks = [
      analysis.seo.hasTitle,
      analysis.seo.hasMetaDescription,
      analysis.seo.titleLength > 10 && analysis.seo.titleLength < 60
    ].filter(Boolean).length;
    console.log('');
    console.log('QUALITY SCORES:');
    console.log('  Content Quality: ' + contentQuality.toFixed(1) + '%');
    console.log('  Structure Quality: ' + structureQuality.toFixed(1) + '%');
    console.log('  SEO Quality: ' + (seoChecks * 33.33).toFixed(1) + '%');
    console.log('  Performance Score: ' + (analysis.loadTime < 3000 ? 'good' : 'needs improvement'));
`

func demoBody(opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "    console.log('demo: analyzing research portal');\n")
	fmt.Fprintf(&b, "    await page.goto('%s', { waitUntil: 'networkidle2', timeout: %d });\n", demoTarget, opts.NavTimeout.Milliseconds())
	b.WriteString("    const analysis = await page.evaluate(() => {\n")
	b.WriteString(analysisSnippet)
	b.WriteString("    });\n")
	b.WriteString(reportSnippet)
	b.WriteString(qualitySnippet)
	b.WriteString("    const timestamp = new Date().toISOString().replace(/[:.]/g, '-');\n")
	fmt.Fprintf(&b, "    const screenshotPath = '%s_' + timestamp + '.png';\n", opts.ScreenshotPrefix)
	b.WriteString("    await page.screenshot({ path: screenshotPath, fullPage: true, type: 'png' });\n")
	b.WriteString("    console.log('Screenshot saved: ' + screenshotPath);\n")
	b.WriteString("    await delay(1000);\n")
	return b.String()
}

func researchBody(opts Options, target string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "    const url = %q;\n", target)
	b.WriteString("    console.log('research: deep analysis of ' + url);\n")
	fmt.Fprintf(&b, "    await page.goto(url, { waitUntil: 'networkidle2', timeout: %d });\n", opts.NavTimeout.Milliseconds())
	b.WriteString("    const analysis = await page.evaluate(() => {\n")
	b.WriteString(analysisSnippet)
	b.WriteString("    });\n")
	b.WriteString(reportSnippet)
	b.WriteString(qualitySnippet)
	b.WriteString("    await delay(1000);\n")
	return b.String()
}

func defaultBody() string {
	return `    console.log('default smoke run');
    await page.goto('https://example.com');
    await delay(2000);
`
}
