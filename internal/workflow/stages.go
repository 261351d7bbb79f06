package workflow

import (
	"fmt"
	"strings"

	"redcube/internal/contract"
)

// Engine names, in pipeline order.
const (
	StagePersonaCore      = "persona_core"
	StageStrategyCompass  = "strategy_compass"
	StageTruthDetector    = "truth_detector"
	StageInsightDistiller = "insight_distiller"
	StageNarrativePrism   = "narrative_prism"
	StageAtomicDesigner   = "atomic_designer"
	StageVisualEncoder    = "visual_encoder"
	StageHifiImager       = "hifi_imager"
)

const stageVersion = "1.0.0"

// DefaultEngines returns the standard eight-stage roster in execution order:
// four strategic ideation stages followed by four narrative expression
// stages. Each engine declares which prior stages' digests feed its prompt.
func DefaultEngines() []*Engine {
	return []*Engine{
		personaCore(),
		strategyCompass(),
		truthDetector(),
		insightDistiller(),
		narrativePrism(),
		atomicDesigner(),
		visualEncoder(),
		hifiImager(),
	}
}

func jsonOnlyRule() string {
	return "必须返回严格的JSON格式（单个顶层对象），不要输出JSON以外的任何内容。"
}

func upstreamSection(digests map[string]string, order ...string) string {
	var b strings.Builder
	for _, name := range order {
		if d, ok := digests[name]; ok {
			fmt.Fprintf(&b, "\n**%s 摘要**:\n%s\n", name, d)
		}
	}
	return b.String()
}

func personaCore() *Engine {
	return &Engine{
		Name:    StagePersonaCore,
		Version: stageVersion,
		Phase:   PhaseIdeation,
		Prompt: func(topic string, _ map[string]string) (string, string) {
			system := `你是RedCube AI的"人格核心构建师"，专门为内容创作者建立统一、鲜明的人格档案。

你的任务是分析内容主题，构建一个统一、可持续的内容人格，确保后续所有内容保持一致的风格和调性。

输出JSON必须包含以下顶层键：
- "persona_profile": 署名身份、人设特征、声音调性、内容策略
- "style_guide": 应该做的、不应该做的、语言示例
- "consistency": 核心理念、内容主题方向、品牌差异化要点

` + jsonOnlyRule()
			user := fmt.Sprintf(`请为以下主题构建内容人格档案：

**主题**: %s

**分析要求**:
1. 深度分析该主题的内容创作需求
2. 确定最适合的人格设定和声音调性
3. 建立清晰的风格指南和一致性标准

请严格按照JSON格式输出完整的人格档案。`, topic)
			return system, user
		},
		Contract: &contract.Contract{
			Stage:        StagePersonaCore,
			RequiredKeys: []string{"persona_profile", "style_guide", "consistency"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{
					"persona_profile": map[string]any{
						"signature_identity": map[string]any{
							"name":        "专业分享者",
							"title":       "内容创作者",
							"credentials": "丰富的实践经验",
						},
						"character_traits": map[string]any{
							"personality_keywords": []any{"专业", "温暖", "实用"},
							"communication_style":  "亲切专业，深入浅出",
						},
						"voice_and_tone": map[string]any{
							"language_style": "专业而亲切",
							"emotional_tone": "温暖励志",
						},
						"content_context": fmt.Sprintf("围绕'%s'的专业内容分享", topic),
					},
					"style_guide": map[string]any{
						"do_rules":   []any{"保持专业性", "注重实用性", "语言亲切"},
						"dont_rules": []any{"避免过于学术", "不要空洞说教", "避免冷漠语调"},
					},
					"consistency": map[string]any{
						"key_mantras":    []any{"实用第一", "温暖分享"},
						"content_themes": []any{"专业指导", "经验分享"},
					},
				}
			},
		},
	}
}

func strategyCompass() *Engine {
	return &Engine{
		Name:     StageStrategyCompass,
		Version:  stageVersion,
		Phase:    PhaseIdeation,
		Upstream: []string{StagePersonaCore},
		Prompt: func(topic string, digests map[string]string) (string, string) {
			system := `你是RedCube AI的"策略罗盘"，负责为内容主题制定整体内容战略。

基于已建立的内容人格，评估主题的市场潜力、受众需求和竞争格局，并选择最合适的内容打法。

输出JSON必须包含以下顶层键：
- "strategy_overview": 主题评估、市场潜力、时机判断
- "audience_analysis": 核心受众画像、痛点、消费偏好
- "content_strategy": 推荐打法、选题方向、成功指标
- "competitive_analysis": 竞争格局与差异化机会

` + jsonOnlyRule()
			user := fmt.Sprintf(`请为以下主题制定内容战略：

**主题**: %s
%s
请严格按照JSON格式输出完整的战略分析。`, topic, upstreamSection(digests, StagePersonaCore))
			return system, user
		},
		Contract: &contract.Contract{
			Stage:        StageStrategyCompass,
			RequiredKeys: []string{"strategy_overview", "audience_analysis", "content_strategy", "competitive_analysis"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{
					"strategy_overview": map[string]any{
						"topic_assessment":   fmt.Sprintf("'%s'具有良好的内容价值潜力", topic),
						"market_potential":   "中等市场潜力，有发展空间",
						"opportunity_window": "当前时机适合，可以布局",
					},
					"audience_analysis": map[string]any{
						"primary_audience": "对该主题感兴趣的用户群体",
						"pain_points":      []any{"缺乏专业指导", "信息碎片化", "难以实践"},
						"preferred_formats": []any{"图文并茂", "结构清晰"},
					},
					"content_strategy": map[string]any{
						"recommended_approach": "深度导向",
						"strategy_rationale":   "该主题更适合提供深度价值，建立长期信任",
						"success_metrics":      []any{"内容深度", "用户留存", "专业认知"},
					},
					"competitive_analysis": map[string]any{
						"landscape":       "竞争适中，存在差异化机会",
						"differentiation": "有温度的专业内容",
					},
				}
			},
		},
	}
}

func truthDetector() *Engine {
	return &Engine{
		Name:     StageTruthDetector,
		Version:  stageVersion,
		Phase:    PhaseIdeation,
		Upstream: []string{StageStrategyCompass},
		Prompt: func(topic string, digests map[string]string) (string, string) {
			system := `你是RedCube AI的"真理探机"，负责对内容主题涉及的事实性信息进行核查与风险评估。

基于内容战略，识别主题中的关键事实声明，评估其可靠性，并标注安全风险等级。

输出JSON必须包含以下顶层键：
- "fact_check": 关键事实声明及核查结论列表
- "safety_level": 整体安全等级（safe / caution / high_risk）
- "credibility_grade": 可信度评级（A / B / C / D）

` + jsonOnlyRule()
			user := fmt.Sprintf(`请对以下主题进行事实核查与安全评估：

**主题**: %s
%s
请严格按照JSON格式输出完整的核查报告。`, topic, upstreamSection(digests, StageStrategyCompass))
			return system, user
		},
		Contract: &contract.Contract{
			Stage:        StageTruthDetector,
			RequiredKeys: []string{"fact_check", "safety_level", "credibility_grade"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{
					"fact_check": []any{
						map[string]any{
							"claim":      fmt.Sprintf("关于'%s'的基础性常识内容", topic),
							"verdict":    "未核查",
							"suggestion": "发布前建议人工复核关键数据与专业建议",
						},
					},
					"safety_level":      "caution",
					"credibility_grade": "C",
				}
			},
		},
	}
}

func insightDistiller() *Engine {
	return &Engine{
		Name:     StageInsightDistiller,
		Version:  stageVersion,
		Phase:    PhaseIdeation,
		Upstream: []string{StagePersonaCore, StageStrategyCompass, StageTruthDetector},
		Prompt: func(topic string, digests map[string]string) (string, string) {
			system := `你是RedCube AI的"洞察提炼器"，负责从主题分析中提炼出最有传播力的核心洞察。

综合人格、战略与事实核查结果，提炼核心洞察，确定"一个大想法"，并评估传播潜力。

输出JSON必须包含以下顶层键：
- "core_insights": 核心洞察列表（每条含洞察与依据）
- "big_idea": 贯穿全文的一个大想法
- "viral_potential": 传播潜力评估
- "story_packaging": 故事化包装建议

` + jsonOnlyRule()
			user := fmt.Sprintf(`请为以下主题提炼核心洞察：

**主题**: %s
%s
请严格按照JSON格式输出完整的洞察报告。`, topic,
				upstreamSection(digests, StagePersonaCore, StageStrategyCompass, StageTruthDetector))
			return system, user
		},
		Contract: &contract.Contract{
			Stage:        StageInsightDistiller,
			RequiredKeys: []string{"core_insights", "big_idea", "viral_potential", "story_packaging"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{
					"core_insights": []any{
						map[string]any{
							"insight":   fmt.Sprintf("'%s'的价值在于把专业知识转化为可执行的日常实践", topic),
							"rationale": "受众最需要的是可操作的指导而非抽象理论",
						},
					},
					"big_idea":        fmt.Sprintf("把'%s'变成每个家庭都能上手的小事", topic),
					"viral_potential": "medium",
					"story_packaging": map[string]any{
						"hook_style":  "真实场景引入",
						"proof_style": "经验与常识结合",
					},
				}
			},
		},
	}
}

func narrativePrism() *Engine {
	return &Engine{
		Name:     StageNarrativePrism,
		Version:  stageVersion,
		Phase:    PhaseExpression,
		Upstream: []string{StagePersonaCore, StageStrategyCompass, StageInsightDistiller},
		Prompt: func(topic string, digests map[string]string) (string, string) {
			system := `你是RedCube AI的"叙事棱镜"，负责把核心洞察折射为完整的图文叙事方案。

以既定人格的声音写作，将大想法展开为有起承转合的叙事结构，并给出标题与行动引导。

输出JSON必须包含以下顶层键：
- "narrative": 分段叙事正文（含开头钩子、主体、结尾）
- "title_options": 3-5个候选标题
- "emotional_words": 贯穿全文的情绪关键词
- "action_points": 给读者的具体行动建议

` + jsonOnlyRule()
			user := fmt.Sprintf(`请为以下主题创作叙事方案：

**主题**: %s
%s
请严格按照JSON格式输出完整的叙事方案。`, topic,
				upstreamSection(digests, StagePersonaCore, StageStrategyCompass, StageInsightDistiller))
			return system, user
		},
		Contract: &contract.Contract{
			Stage:        StageNarrativePrism,
			RequiredKeys: []string{"narrative", "title_options", "emotional_words", "action_points"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{
					"narrative": map[string]any{
						"hook": fmt.Sprintf("关于'%s'，很多人第一步就走错了。", topic),
						"body": fmt.Sprintf("围绕'%s'，从最常见的误区讲起，给出循序渐进的做法。", topic),
						"ending": "慢慢来，比快更重要。",
					},
					"title_options": []any{
						fmt.Sprintf("%s：新手最容易忽略的3件事", topic),
						fmt.Sprintf("一篇讲清楚%s", topic),
						fmt.Sprintf("%s避坑指南", topic),
					},
					"emotional_words": []any{"安心", "踏实", "循序渐进"},
					"action_points":   []any{"从今天的一个小改变开始", "记录每次尝试的反馈"},
				}
			},
		},
	}
}

func atomicDesigner() *Engine {
	return &Engine{
		Name:     StageAtomicDesigner,
		Version:  stageVersion,
		Phase:    PhaseExpression,
		Upstream: []string{StageNarrativePrism},
		Prompt: func(topic string, digests map[string]string) (string, string) {
			system := `你是RedCube AI的"原子设计师"，负责将叙事方案拆解为可排版的原子化内容组件。

按原子设计方法论，把叙事内容拆分为页面级组件（封面页、内容页、结尾页），并定义统一的设计系统。

输出JSON必须包含以下顶层键：
- "atomic_design": 页面组件清单（每页的类型与内容要点）
- "content_structure": 页面顺序与信息层级
- "design_system": 配色、字体、间距等设计规范
- "implementation_guide": 排版落地说明

` + jsonOnlyRule()
			user := fmt.Sprintf(`请为以下主题设计原子化内容组件：

**主题**: %s
%s
请严格按照JSON格式输出完整的设计方案。`, topic, upstreamSection(digests, StageNarrativePrism))
			return system, user
		},
		Contract: &contract.Contract{
			Stage:        StageAtomicDesigner,
			RequiredKeys: []string{"atomic_design", "content_structure", "design_system", "implementation_guide"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{
					"atomic_design": []any{
						map[string]any{"page": "cover", "content": fmt.Sprintf("主题封面：%s", topic)},
						map[string]any{"page": "content", "content": "核心要点分条呈现"},
						map[string]any{"page": "ending", "content": "总结与行动引导"},
					},
					"content_structure": []any{"cover", "content", "ending"},
					"design_system": map[string]any{
						"primary_color": "#E94B4B",
						"font_family":   "PingFang SC, sans-serif",
						"spacing":       "compact",
					},
					"implementation_guide": "每页信息不超过三个要点，标题突出，正文留白充足",
				}
			},
		},
	}
}

func visualEncoder() *Engine {
	return &Engine{
		Name:     StageVisualEncoder,
		Version:  stageVersion,
		Phase:    PhaseExpression,
		Upstream: []string{StageNarrativePrism, StageAtomicDesigner},
		Prompt: func(topic string, digests map[string]string) (string, string) {
			system := `你是RedCube AI的"视觉编码器"，负责把原子化设计方案编码为可直接渲染的HTML页面。

为每个页面组件生成独立的HTML片段与统一的CSS主题，页面尺寸按竖版图文卡片设计。

输出JSON必须包含以下顶层键：
- "html_pages": HTML页面片段列表（按页面顺序）
- "css_theme": 统一的CSS主题样式
- "page_count": 页面总数（整数）

` + jsonOnlyRule()
			user := fmt.Sprintf(`请为以下主题生成HTML页面：

**主题**: %s
%s
请严格按照JSON格式输出完整的页面代码。`, topic,
				upstreamSection(digests, StageNarrativePrism, StageAtomicDesigner))
			return system, user
		},
		Contract: &contract.Contract{
			Stage:        StageVisualEncoder,
			RequiredKeys: []string{"html_pages", "css_theme", "page_count"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{
					"html_pages": []any{
						fmt.Sprintf(`<div class="page-to-screenshot cover"><h1>%s</h1></div>`, topic),
						`<div class="page-to-screenshot content"><p>内容生成中，请稍后重试。</p></div>`,
					},
					"css_theme":  ".page-to-screenshot { width: 621px; min-height: 830px; padding: 48px; background: #fff; }",
					"page_count": float64(2),
				}
			},
		},
	}
}

func hifiImager() *Engine {
	return &Engine{
		Name:     StageHifiImager,
		Version:  stageVersion,
		Phase:    PhaseExpression,
		Upstream: []string{StageVisualEncoder},
		Prompt: func(topic string, digests map[string]string) (string, string) {
			system := `你是RedCube AI的"高保真成像器"，负责为最终HTML页面制定截图成像方案。

根据页面内容确定截图参数、渲染注意事项与产物清单。

输出JSON必须包含以下顶层键：
- "screenshot_config": 视口尺寸、缩放比例、目标选择器
- "rendering_guide": 渲染与等待策略说明
- "output_manifest": 输出文件清单（文件名与对应页面）

` + jsonOnlyRule()
			user := fmt.Sprintf(`请为以下主题的页面制定成像方案：

**主题**: %s
%s
请严格按照JSON格式输出完整的成像方案。`, topic, upstreamSection(digests, StageVisualEncoder))
			return system, user
		},
		Contract: &contract.Contract{
			Stage:        StageHifiImager,
			RequiredKeys: []string{"screenshot_config", "rendering_guide", "output_manifest"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{
					"screenshot_config": map[string]any{
						"viewport_width":      float64(1242),
						"viewport_height":     float64(1660),
						"device_scale_factor": float64(2),
						"selector":            ".page-to-screenshot",
					},
					"rendering_guide": "等待字体与图片加载完成后逐页截图",
					"output_manifest": []any{
						map[string]any{"file": "page_01.png", "page": "cover"},
						map[string]any{"file": "page_02.png", "page": "content"},
					},
				}
			},
		},
	}
}
