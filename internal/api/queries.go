package api

const spaceCampaignsQuery = `
query GetCampaigns($id: Int!, $input: ListCampaignInput!) {
  space(id: $id) {
    id
    name
    campaigns(input: $input) {
      edges {
        node {
          id
          name
          status
        }
        cursor
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
}`

const campaignDetailsQuery = `
query GetCampaignDetails($id: ID!) {
  campaign(id: $id) {
    id
    name
    status
    tags
  }
}`

const testConnectionQuery = `
query TestConnection($id: Int!) {
  space(id: $id) {
    id
    name
  }
}`
